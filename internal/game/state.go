package game

import (
	"fmt"
	"slices"

	"github.com/lox/settlersforbots/internal/randutil"
)

// Prompt is the kind of decision the current actor must make.
type Prompt string

const (
	PromptBuildInitialSettlement Prompt = "BUILD_INITIAL_SETTLEMENT"
	PromptPlayTurn               Prompt = "PLAY_TURN"
	PromptDiscard                Prompt = "DISCARD"
	PromptMoveRobber             Prompt = "MOVE_ROBBER"
	PromptDecideTrade            Prompt = "DECIDE_TRADE"
)

// PlayerState holds one seat's private and public attributes.
type PlayerState struct {
	Color         Color          `json:"color"`
	Resources     ResourceVector `json:"resources"`
	Settlements   int            `json:"settlements"`
	Cities        int            `json:"cities"`
	Knights       int            `json:"knights"`
	NewKnights    int            `json:"new_knights"`
	PlayedKnights int            `json:"played_knights"`
	VictoryCards  int            `json:"victory_cards"`
}

// Options configures a new game.
type Options struct {
	Seed          int64
	VictoryPoints int
}

// State is one immutable point in a game's history. Apply never modifies its
// receiver; callers that want to change a state clone it first.
type State struct {
	Colors        []Color       `json:"colors"`
	Seed          int64         `json:"seed"`
	Index         int           `json:"index"`
	VictoryPoints int           `json:"victory_points_to_win"`
	Players       []PlayerState `json:"players"`
	Sites         []Site        `json:"sites"`
	Robber        int           `json:"robber"`
	DevDeck       []DevCard     `json:"dev_deck"`

	TurnSeat          int    `json:"turn_seat"`
	CurrentSeat       int    `json:"current_seat"`
	Prompt            Prompt `json:"prompt"`
	InitialBuildPhase bool   `json:"is_initial_build_phase"`
	Placements        int    `json:"placements"`
	HasRolled         bool   `json:"has_rolled"`
	PlayedDevCard     bool   `json:"played_dev_card"`
	TradeOffers       int    `json:"trade_offers"`
	PendingDiscards   []int  `json:"pending_discards,omitempty"`
	Trade             *Trade `json:"trade,omitempty"`
	LargestArmy       Color  `json:"largest_army,omitempty"`
	Turns             int    `json:"turns"`
	Winner            Color  `json:"winner,omitempty"`
}

// New returns the index-0 state for a game seated with colors.
func New(colors []Color, opts Options) (*State, error) {
	if len(colors) < 2 || len(colors) > MaxSeats {
		return nil, fmt.Errorf("game needs 2 to %d seats, got %d", MaxSeats, len(colors))
	}
	seen := make(map[Color]bool, len(colors))
	for _, c := range colors {
		if _, err := ParseColor(string(c)); err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, fmt.Errorf("color %s seated twice", c)
		}
		seen[c] = true
	}
	if opts.VictoryPoints <= 0 {
		opts.VictoryPoints = DefaultVictoryPoints
	}

	rng := randutil.New(opts.Seed)
	s := &State{
		Colors:            slices.Clone(colors),
		Seed:              opts.Seed,
		VictoryPoints:     opts.VictoryPoints,
		Players:           make([]PlayerState, len(colors)),
		Sites:             newSites(rng),
		DevDeck:           newDevDeck(rng),
		Prompt:            PromptBuildInitialSettlement,
		InitialBuildPhase: true,
	}
	for i, c := range colors {
		s.Players[i].Color = c
	}
	// The robber starts on the least productive site.
	for i, site := range s.Sites {
		if DiceProbability(site.Number) < DiceProbability(s.Sites[s.Robber].Number) {
			s.Robber = i
		}
	}
	return s, nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Colors = slices.Clone(s.Colors)
	c.Players = slices.Clone(s.Players)
	c.Sites = slices.Clone(s.Sites)
	c.DevDeck = slices.Clone(s.DevDeck)
	c.PendingDiscards = slices.Clone(s.PendingDiscards)
	if s.Trade != nil {
		c.Trade = s.Trade.clone()
	}
	return &c
}

// Seats is the number of seated players.
func (s *State) Seats() int { return len(s.Colors) }

// CurrentColor is the actor the state is waiting on.
func (s *State) CurrentColor() Color { return s.Colors[s.CurrentSeat] }

// TurnColor is the seat holding normal turn control.
func (s *State) TurnColor() Color { return s.Colors[s.TurnSeat] }

// CurrentPrompt is the decision the current actor must make.
func (s *State) CurrentPrompt() Prompt { return s.Prompt }

// IsTerminal reports whether somebody has won.
func (s *State) IsTerminal() bool { return s.Winner != "" }

// Seat returns the seat index of c, or -1.
func (s *State) Seat(c Color) int {
	return slices.Index(s.Colors, c)
}

// Player returns the attributes of c. It panics for unseated colors.
func (s *State) Player(c Color) PlayerState {
	i := s.Seat(c)
	if i < 0 {
		panic(fmt.Sprintf("color %s is not seated", c))
	}
	return s.Players[i]
}

// PublicVictoryPoints counts points visible to every seat.
func (s *State) PublicVictoryPoints(c Color) int {
	p := s.Player(c)
	vp := p.Settlements + 2*p.Cities
	if s.LargestArmy == c {
		vp += largestArmyPoints
	}
	return vp
}

// ActualVictoryPoints includes hidden victory point cards.
func (s *State) ActualVictoryPoints(c Color) int {
	return s.PublicVictoryPoints(c) + s.Player(c).VictoryCards
}

// Actors returns the seats allowed to submit an action right now: the current
// actor and, while a trade is resolving, the initiator who may cancel.
func (s *State) Actors() []Color {
	if s.IsTerminal() {
		return nil
	}
	actors := []Color{s.CurrentColor()}
	if s.Trade != nil && s.Trade.Resolving {
		if init := s.Colors[s.Trade.Initiator]; init != actors[0] {
			actors = append(actors, init)
		}
	}
	return actors
}

// MayAct reports whether c is one of Actors.
func (s *State) MayAct(c Color) bool {
	return slices.Contains(s.Actors(), c)
}

// TradePhase reports where the negotiation protocol stands.
func (s *State) TradePhase() TradePhase {
	if s.Trade == nil || !s.Trade.Resolving {
		return TradeNone
	}
	for i, responded := range s.Trade.Responded {
		if i != s.Trade.Initiator && responded {
			return TradeResolving
		}
	}
	return TradeProposed
}

func (s *State) buildingsOf(c Color, b Building) []int {
	var out []int
	for i, site := range s.Sites {
		if site.Owner == c && site.Building == b {
			out = append(out, i)
		}
	}
	return out
}
