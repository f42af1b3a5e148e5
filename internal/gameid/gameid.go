// Package gameid generates sortable, prefixed identifiers for games and rooms.
//
// An identifier is a type prefix, an underscore and a UUIDv7 encoded as 26
// characters of Crockford base32, for example game_01h5n0et5q6mt3v7ms1234abcd.
package gameid

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/coder/quartz"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const (
	GamePrefix = "game"
	RoomPrefix = "room"

	bodyLen = 26
)

// RandSource interface for dependency injection of randomness
type RandSource interface {
	IntN(n int) int
}

// Generator handles ID generation with configurable randomness and clock.
type Generator struct {
	randSource RandSource
	clock      quartz.Clock
}

// NewGenerator creates a generator. A nil RandSource uses crypto/rand and a
// nil clock uses the real clock.
func NewGenerator(randSource RandSource, clock quartz.Clock) *Generator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Generator{randSource: randSource, clock: clock}
}

var defaultGenerator = NewGenerator(nil, nil)

// NewGame returns a fresh game identifier.
func NewGame() string { return defaultGenerator.New(GamePrefix) }

// NewRoom returns a fresh room identifier.
func NewRoom() string { return defaultGenerator.New(RoomPrefix) }

// New returns prefix_<uuidv7 in base32>.
func (g *Generator) New(prefix string) string {
	uuid := g.generateUUIDv7()
	return prefix + "_" + encodeBase32(uuid)
}

// generateUUIDv7 creates a 128-bit UUIDv7
func (g *Generator) generateUUIDv7() [16]byte {
	var uuid [16]byte

	// 48-bit millisecond timestamp, version 7, variant 10, 74 random bits.
	now := g.clock.Now().UnixMilli()
	for i := range 6 {
		uuid[i] = byte(now >> (40 - 8*i))
	}

	if g.randSource != nil {
		for i := 6; i < 16; i++ {
			uuid[i] = byte(g.randSource.IntN(256))
		}
	} else if _, err := rand.Read(uuid[6:]); err != nil {
		panic("failed to generate random bytes: " + err.Error())
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return uuid
}

// encodeBase32 encodes a 128-bit UUID as a 26-character base32 string. The
// value is treated as 130 bits with two leading zero bits.
func encodeBase32(data [16]byte) string {
	result := make([]byte, bodyLen)
	var acc uint32
	bits := 2 // leading zero padding
	idx := 0
	for _, b := range data {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			result[idx] = alphabet[(acc>>bits)&0x1f]
			idx++
		}
	}
	return string(result)
}

// Parse checks that id carries the wanted prefix and a valid body.
func Parse(id, prefix string) error {
	p, body, ok := strings.Cut(id, "_")
	if !ok {
		return fmt.Errorf("id %q has no type prefix", id)
	}
	if p != prefix {
		return fmt.Errorf("id %q has prefix %q, want %q", id, p, prefix)
	}
	return validateBody(body)
}

func validateBody(body string) error {
	if len(body) != bodyLen {
		return fmt.Errorf("id body must be exactly %d characters, got %d", bodyLen, len(body))
	}
	// The first character holds only three significant bits.
	if body[0] > '7' {
		return fmt.Errorf("id body first character must be 0-7, got %c", body[0])
	}
	for i, char := range body {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}
