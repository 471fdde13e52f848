package internal

// Methods over the ordered player list.

// FindHost returns the host and its index, or nil and -1.
func FindHost(players []*Player) (*Player, int) {
	for i, p := range players {
		if p.IsHost {
			return p, i
		}
	}
	return nil, -1
}

func FindByConnection(players []*Player, connectionId string) (*Player, int) {
	for i, p := range players {
		if p.ConnectionId == connectionId {
			return p, i
		}
	}
	return nil, -1
}

func FindByIdentity(players []*Player, identity string) (*Player, int) {
	for i, p := range players {
		if p.StableIdentity == identity {
			return p, i
		}
	}
	return nil, -1
}

// HandOffHost removes the player holding connectionId from the ordered list.
// When the removed player was the host and anyone remains, the first remaining
// player in list order becomes host. The input slice is not modified.
func HandOffHost(players []*Player, connectionId string) (remaining []*Player, removed *Player, newHost *Player) {
	remaining = make([]*Player, 0, len(players))
	for _, p := range players {
		if removed == nil && p.ConnectionId == connectionId {
			removed = p.Clone()
			continue
		}
		remaining = append(remaining, p.Clone())
	}
	if removed == nil {
		return players, nil, nil
	}
	if removed.IsHost && len(remaining) > 0 {
		remaining[0].IsHost = true
		newHost = remaining[0]
	}
	return remaining, removed, newHost
}

func (r *Room) CanStartGame(playerCount int) bool {
	return r.Phase == PhaseWaiting && playerCount >= MinPlayersToStart
}

func (r *Room) IsLastRound() bool {
	return r.CurrentRound >= r.Settings.TotalRounds
}
