package id

import (
	"strings"

	"github.com/google/uuid"
)

// UUIDGenerator hands out random (v4) UUID strings.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// ShortGenerator returns 48 random bits of a v4 UUID as 12 upper-case hex
// digits, short enough to read out over chat ("#3F2A91C04B7E").
type ShortGenerator struct{}

func NewShortGenerator() ShortGenerator { return ShortGenerator{} }

func (ShortGenerator) NewID() string {
	s := uuid.NewString()
	return strings.ToUpper(s[:8] + s[9:13])
}
