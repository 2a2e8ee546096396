package collection

import (
	"math/big"

	"github.com/google/uuid"
)

const trackIDDigits = 9

// NewTrackID returns a random 9-digit TrackID taken from the decimal form of
// a random UUID
func NewTrackID() string {
	id := uuid.New()
	digits := new(big.Int).SetBytes(id[:]).String()
	for len(digits) < trackIDDigits {
		digits += "0"
	}
	return digits[:trackIDDigits]
}

// UniqueTrackID returns a new TrackID for which taken reports false
func UniqueTrackID(taken func(string) bool) string {
	for {
		id := NewTrackID()
		if !taken(id) {
			return id
		}
	}
}
