package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/scythe504/sketchrooms-backend/internal"
)

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

const idAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// GenerateID returns a random room code of length n drawn from an alphabet
// without look-alike characters.
func GenerateID(n int) string {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		b[i] = idAlphabet[idx.Int64()]
	}
	return string(b)
}

// ValidateSettings checks the room settings against fixed bounds and the
// number of prompts available to play with.
func ValidateSettings(s internal.Settings, promptPool int) error {
	switch {
	case s.MaxPlayers < internal.MinMaxPlayers || s.MaxPlayers > internal.MaxMaxPlayers:
		return fmt.Errorf("%w: max players must be between %d and %d",
			internal.ErrInvalidSettings, internal.MinMaxPlayers, internal.MaxMaxPlayers)
	case s.TotalRounds < internal.MinTotalRounds || s.TotalRounds > internal.MaxTotalRounds:
		return fmt.Errorf("%w: total rounds must be between %d and %d",
			internal.ErrInvalidSettings, internal.MinTotalRounds, internal.MaxTotalRounds)
	case s.DrawingTimeSeconds < internal.MinDrawingTime || s.DrawingTimeSeconds > internal.MaxDrawingTime:
		return fmt.Errorf("%w: drawing time must be between %d and %d seconds",
			internal.ErrInvalidSettings, internal.MinDrawingTime, internal.MaxDrawingTime)
	case s.TotalRounds > promptPool:
		return fmt.Errorf("%w: only %d prompts available for %d rounds",
			internal.ErrInvalidSettings, promptPool, s.TotalRounds)
	}
	return nil
}

// WithDefaults fills zero fields with the default settings.
func WithDefaults(s internal.Settings) internal.Settings {
	if s.MaxPlayers == 0 {
		s.MaxPlayers = 8
	}
	if s.TotalRounds == 0 {
		s.TotalRounds = 3
	}
	if s.DrawingTimeSeconds == 0 {
		s.DrawingTimeSeconds = internal.DefaultDrawTime
	}
	return s
}
