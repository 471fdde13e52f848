package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/repository"
	"github.com/scythe504/sketchrooms-backend/internal/utils"
)

// =============================================================================
// ROOM MANAGEMENT
// =============================================================================

// CreateRoom validates settings against the prompt pool and allocates a room
// with its prompt sequence.
func (o *Orchestrator) CreateRoom(ctx context.Context, settings internal.Settings) (string, error) {
	settings = utils.WithDefaults(settings)
	pool, err := o.catalog.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("count prompts: %w", err)
	}
	if err := utils.ValidateSettings(settings, pool); err != nil {
		return "", err
	}

	roomID, err := o.rooms.Create(ctx, settings)
	if err != nil {
		return "", err
	}
	if err := o.engine.ShufflePrompts(ctx, roomID, settings.TotalRounds); err != nil {
		if derr := o.rooms.DeleteRoomAndAllDerivedKeys(ctx, roomID); derr != nil {
			o.log.Warn().Err(derr).Str("room", roomID).Msg("cleanup after failed create")
		}
		return "", fmt.Errorf("room %s: pick prompts: %w", roomID, err)
	}
	return roomID, nil
}

type JoinRequest struct {
	RoomID         string
	ConnectionID   string
	StableIdentity string
	DisplayName    string
}

type JoinResult struct {
	// Reconnected is set when a grace period was recovered.
	Reconnected bool
	// Player is set once the participant is in the active list.
	Player *internal.Player
	// Position is the 1-based waitlist position while still queued.
	Position int
}

// Join either recovers a pending grace period for the identity or queues the
// participant and drains the waitlist. A reconnect arriving after the grace
// period ended is treated as a fresh join.
func (o *Orchestrator) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	name, err := internal.CleanDisplayName(req.DisplayName)
	if err != nil {
		return JoinResult{}, err
	}
	if req.ConnectionID == "" {
		req.ConnectionID = uuid.NewString()
	}
	if req.StableIdentity == "" {
		req.StableIdentity = uuid.NewString()
	}

	unlock := o.lockRoom(req.RoomID)
	defer unlock()

	if _, err := o.rooms.MustGet(ctx, req.RoomID); err != nil {
		return JoinResult{}, err
	}

	player, _, err := o.grace.Recover(ctx, req.RoomID, req.StableIdentity, req.ConnectionID)
	if err != nil {
		return JoinResult{}, err
	}
	if player != nil {
		o.timers.stop(graceTimerKey(req.RoomID, req.StableIdentity))
		o.sendSnapshot(ctx, req.RoomID, player)
		// The rest of the room only knows the old connection id.
		o.broadcastMetadata(ctx, req.RoomID)
		return JoinResult{Reconnected: true, Player: player}, nil
	}

	entry := internal.WaitlistEntry{
		ConnectionId:   req.ConnectionID,
		DisplayName:    name,
		StableIdentity: req.StableIdentity,
		JoinedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := o.admission.Enqueue(ctx, req.RoomID, entry); err != nil {
		return JoinResult{}, err
	}

	admitted := o.drain(ctx, req.RoomID)
	for _, p := range admitted {
		if p.ConnectionId == req.ConnectionID {
			return JoinResult{Player: p}, nil
		}
	}

	pos, err := o.waitlistPosition(ctx, req.RoomID, req.ConnectionID)
	if err != nil {
		return JoinResult{}, err
	}
	o.send(ctx, req.RoomID, req.ConnectionID, internal.EventWaitlisted, internal.WaitlistedData{RoomId: req.RoomID, Position: pos})
	o.broadcastMetadata(ctx, req.RoomID)
	return JoinResult{Position: pos}, nil
}

func (o *Orchestrator) waitlistPosition(ctx context.Context, roomID, connectionID string) (int, error) {
	waiting, err := o.rooms.Waitlist(ctx, roomID)
	if err != nil {
		return 0, err
	}
	for i, e := range waiting {
		if e.ConnectionId == connectionID {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("connection %s: %w", connectionID, internal.ErrPlayerNotFound)
}

// drain admits as many waitlisted participants as the room allows and
// announces each one. Callers hold the room lock.
func (o *Orchestrator) drain(ctx context.Context, roomID string) []*internal.Player {
	admitted, err := o.admission.Drain(ctx, roomID)
	if err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Msg("drain waitlist")
	}
	if len(admitted) == 0 {
		return nil
	}

	room, err := o.rooms.Get(ctx, roomID)
	if err != nil || room == nil {
		return admitted
	}
	players, err := o.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		return admitted
	}
	for _, p := range admitted {
		o.broadcast(ctx, roomID, internal.EventPlayerJoined, internal.PlayerJoinedData{
			Player:      p.ToPublicPlayer(),
			PlayerCount: len(players),
			CanStart:    room.CanStartGame(len(players)),
		})
		o.sendSnapshot(ctx, roomID, p)
	}
	o.broadcastMetadata(ctx, roomID)
	return admitted
}

// =============================================================================
// DISCONNECTS & DEPARTURES
// =============================================================================

// Disconnect handles a dropped connection. Active players enter a grace
// period and stay in the room; queued participants are simply dropped.
func (o *Orchestrator) Disconnect(ctx context.Context, roomID, connectionID string) error {
	unlock := o.lockRoom(roomID)
	defer unlock()

	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return nil
	}

	players, err := o.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		return err
	}
	player, _ := internal.FindByConnection(players, connectionID)
	if player == nil {
		return o.withdraw(ctx, roomID, connectionID)
	}

	rec, err := o.grace.Begin(ctx, roomID, player)
	if err != nil {
		return err
	}
	identity, prior := rec.StableIdentity, rec.PriorConnectionId
	o.schedule(graceTimerKey(roomID, identity), o.grace.Period(), func(ctx context.Context) {
		o.expireGrace(ctx, roomID, identity, prior)
	})
	return nil
}

func (o *Orchestrator) withdraw(ctx context.Context, roomID, connectionID string) error {
	entry, err := o.admission.Withdraw(ctx, roomID, connectionID)
	if err != nil {
		return err
	}
	if entry != nil {
		o.broadcastMetadata(ctx, roomID)
	}
	return nil
}

// expireGrace makes a departure permanent unless the player came back.
func (o *Orchestrator) expireGrace(ctx context.Context, roomID, identity, priorConnectionID string) {
	unlock := o.lockRoom(roomID)
	defer unlock()

	dep, err := o.rooms.ExpireDeparture(ctx, roomID, identity, priorConnectionID)
	if err != nil {
		o.log.Error().Err(err).Str("room", roomID).Str("identity", identity).Msg("expire grace period")
		return
	}
	if dep.Removed == nil {
		return
	}
	o.log.Info().Str("room", roomID).Str("identity", identity).Msg("grace period expired, player departed")
	o.afterDeparture(ctx, roomID, dep)
}

// Leave removes the caller immediately, with no grace period.
func (o *Orchestrator) Leave(ctx context.Context, roomID, connectionID string) error {
	unlock := o.lockRoom(roomID)
	defer unlock()

	dep, err := o.rooms.RemovePlayer(ctx, roomID, connectionID)
	if err != nil {
		return err
	}
	if dep.Removed == nil {
		return o.withdraw(ctx, roomID, connectionID)
	}
	o.timers.stop(graceTimerKey(roomID, dep.Removed.StableIdentity))
	o.afterDeparture(ctx, roomID, dep)
	return nil
}

// afterDeparture announces a permanent departure, refills the room from the
// waitlist and tears the room down once nobody is left. Callers hold the
// room lock.
func (o *Orchestrator) afterDeparture(ctx context.Context, roomID string, dep repository.Departure) {
	if dep.Remaining > 0 {
		o.broadcast(ctx, roomID, internal.EventPlayerLeft, internal.PlayerLeftData{
			Player:      dep.Removed.ToPublicPlayer(),
			PlayerCount: dep.Remaining,
			NewHost:     dep.NewHost.ToPublicPlayer(),
		})
		if admitted := o.drain(ctx, roomID); len(admitted) == 0 {
			o.broadcastMetadata(ctx, roomID)
		}
		return
	}

	// An empty room may still refill from its queue when admission is open.
	if admitted := o.drain(ctx, roomID); len(admitted) > 0 {
		return
	}
	o.teardown(ctx, roomID)
}

// teardown cancels the countdown and deletes every key the room owns.
func (o *Orchestrator) teardown(ctx context.Context, roomID string) {
	o.timers.stopAll(roomTimerPrefix(roomID))
	if err := o.countdown.Cancel(ctx, roomID); err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Msg("cancel countdown on teardown")
	}
	waiting, err := o.rooms.Waitlist(ctx, roomID)
	if err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Msg("read waitlist on teardown")
	}
	for _, e := range waiting {
		o.send(ctx, roomID, e.ConnectionId, internal.EventError, internal.ErrorData{
			Code:    internal.ReasonCode(internal.ErrRoomNotFound),
			Message: "room closed",
		})
	}
	if err := o.rooms.DeleteRoomAndAllDerivedKeys(ctx, roomID); err != nil {
		o.log.Error().Err(err).Str("room", roomID).Msg("teardown")
		return
	}
	o.locks.Delete(roomID)
}
