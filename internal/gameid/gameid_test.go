package gameid

import (
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
)

type fixedRand struct{ n int }

func (f fixedRand) IntN(int) int { return f.n }

func TestNewGame(t *testing.T) {
	id := NewGame()

	if !strings.HasPrefix(id, "game_") {
		t.Errorf("expected game_ prefix, got %s", id)
	}
	if err := Parse(id, GamePrefix); err != nil {
		t.Errorf("generated ID failed validation: %v", err)
	}
	if err := Parse(id, RoomPrefix); err == nil {
		t.Errorf("game id accepted as room id")
	}
}

func TestGenerateUnique(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := NewRoom()
		if ids[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		ids[id] = true
	}
}

func TestGenerateTimeSorted(t *testing.T) {
	clock := quartz.NewMock(t)
	g := NewGenerator(nil, clock)

	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, g.New(GamePrefix))
		clock.Advance(time.Millisecond)
	}

	// UUIDv7 sorts by timestamp
	for i := 1; i < len(ids); i++ {
		if strings.Compare(ids[i-1], ids[i]) >= 0 {
			t.Errorf("IDs not sorted: %s >= %s", ids[i-1], ids[i])
		}
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	clock := quartz.NewMock(t)
	a := NewGenerator(fixedRand{n: 7}, clock).New(GamePrefix)
	b := NewGenerator(fixedRand{n: 7}, clock).New(GamePrefix)
	if a != b {
		t.Errorf("expected identical IDs, got %s and %s", a, b)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid ID", "game_01h5n0et5q6mt3v7ms1234abcd", false},
		{"no prefix", "01h5n0et5q6mt3v7ms1234abcd", true},
		{"wrong prefix", "room_01h5n0et5q6mt3v7ms1234abcd", true},
		{"too short", "game_01h5n0et5q6mt3v7ms123", true},
		{"too long", "game_01h5n0et5q6mt3v7ms1234abcdef", true},
		{"first char too high", "game_81h5n0et5q6mt3v7ms1234abcd", true},
		{"invalid character", "game_01h5n0et5q6mt3v7ms1234abcu", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Parse(tt.id, GamePrefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestEncodeBase32(t *testing.T) {
	var zero [16]byte
	if got := encodeBase32(zero); got != strings.Repeat("0", 26) {
		t.Errorf("zero UUID encoded as %s", got)
	}

	var ones [16]byte
	for i := range ones {
		ones[i] = 0xff
	}
	if got := encodeBase32(ones); got != "7"+strings.Repeat("z", 25) {
		t.Errorf("max UUID encoded as %s", got)
	}
}
