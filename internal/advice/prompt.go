package advice

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/store"
)

const systemPrompt = "You are an expert Settlers of Catan negotiation coach. " +
	"Provide concise trade and negotiation ideas for a beginner."

var instructions = strings.Join([]string{
	"Follow this template exactly and add nothing outside it.",
	"Refer to players by color (RED, BLUE, WHITE, ORANGE) and to resources by name (WOOD, BRICK, SHEEP, WHEAT, ORE).",
	"Now: (negotiate / do not negotiate).",
	"Reason: (one line).",
	"",
	"Watch (up to 5)",
	" Resources I am short of:",
	" Leader's VP and largest army:",
	" Robber position and recent rolls:",
	" Opponents' hand sizes:",
	"",
	"Suggested trades (top 2)",
	"1) Partner: (color)",
	"    Receive: (resources)",
	"    Give: (resources)",
	"    My gain: (one line)",
	"    Their gain: (one line)",
	"    Caution: (one line)",
	"    Success chance: (0.xx)",
	"   Limits",
	"    Most I would give:",
	"    Never give:",
	"",
	"2) Partner: (color)",
	"    Receive: (resources)",
	"    Give: (resources)",
	"    My gain: (one line)",
	"    Their gain: (one line)",
	"    Caution: (one line)",
	"    Success chance: (0.xx)",
	"   Limits",
	"    Most I would give:",
	"    Never give:",
}, "\n")

const imageNote = "A board image is attached. Work what it shows into the template where relevant " +
	"and mention briefly that you looked at it."

type playerSummary struct {
	Color               game.Color            `json:"color"`
	VictoryPoints       int                   `json:"victory_points"`
	ActualVictoryPoints int                   `json:"actual_victory_points"`
	Resources           map[game.Resource]int `json:"resources_in_hand"`
	DevelopmentCards    map[game.DevCard]int  `json:"development_cards_in_hand"`
	HasLargestArmy      bool                  `json:"has_largest_army"`
	KnightsPlayed       int                   `json:"knights_played"`
}

type siteSummary struct {
	Site     int           `json:"site"`
	Resource game.Resource `json:"resource"`
	Number   int           `json:"number"`
	Color    game.Color    `json:"color"`
	Building game.Building `json:"building"`
}

type boardSnapshot struct {
	Robber          int           `json:"robber_site"`
	BuiltStructures []siteSummary `json:"built_structures"`
}

type actionRecord struct {
	Sequence int         `json:"sequence"`
	Action   game.Action `json:"action"`
}

type promptContext struct {
	Players         []playerSummary `json:"player_summaries"`
	Board           boardSnapshot   `json:"board_snapshot"`
	RecentActions   []actionRecord  `json:"recent_action_log"`
	ActionOffset    int             `json:"action_offset"`
	CurrentColor    game.Color      `json:"current_color"`
	HumanColors     []game.Color    `json:"human_colors"`
	PlayableActions []game.Action   `json:"playable_actions"`
}

func summarizePlayers(s *game.State) []playerSummary {
	out := make([]playerSummary, 0, len(s.Colors))
	for _, c := range s.Colors {
		p := s.Player(c)
		hand := make(map[game.Resource]int, game.NumResources)
		for _, r := range game.Resources {
			hand[r] = p.Resources[r]
		}
		out = append(out, playerSummary{
			Color:               c,
			VictoryPoints:       s.PublicVictoryPoints(c),
			ActualVictoryPoints: s.ActualVictoryPoints(c),
			Resources:           hand,
			DevelopmentCards: map[game.DevCard]int{
				game.Knight:       p.Knights + p.NewKnights,
				game.VictoryPoint: p.VictoryCards,
			},
			HasLargestArmy: s.LargestArmy == c,
			KnightsPlayed:  p.PlayedKnights,
		})
	}
	return out
}

func summarizeBoard(s *game.State) boardSnapshot {
	b := boardSnapshot{Robber: s.Robber}
	for i, site := range s.Sites {
		if site.Owner == "" {
			continue
		}
		b.BuiltStructures = append(b.BuiltStructures, siteSummary{
			Site:     i,
			Resource: site.Resource,
			Number:   site.Number,
			Color:    site.Owner,
			Building: site.Building,
		})
	}
	return b
}

// summarizeActions keeps the last limit actions of the log. A limit of zero
// or less keeps everything.
func summarizeActions(entries []store.Entry, limit int) ([]actionRecord, int) {
	var records []actionRecord
	for _, e := range entries {
		if e.Action != nil {
			records = append(records, actionRecord{Sequence: e.Index, Action: *e.Action})
		}
	}
	offset := 0
	if limit > 0 && len(records) > limit {
		offset = len(records) - limit
		records = records[offset:]
	}
	return records, offset
}

func buildContext(s *game.State, entries []store.Entry, seats []store.Seat, limit int) promptContext {
	var humans []game.Color
	for _, seat := range seats {
		if seat.Kind == string(bot.Human) {
			humans = append(humans, seat.Color)
		}
	}
	slices.Sort(humans)
	recent, offset := summarizeActions(entries, limit)
	return promptContext{
		Players:         summarizePlayers(s),
		Board:           summarizeBoard(s),
		RecentActions:   recent,
		ActionOffset:    offset,
		CurrentColor:    s.CurrentColor(),
		HumanColors:     humans,
		PlayableActions: s.LegalActions(),
	}
}

func pretty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (pc promptContext) render(withImage bool) string {
	humans := "(all bots)"
	if len(pc.HumanColors) > 0 {
		parts := make([]string, len(pc.HumanColors))
		for i, c := range pc.HumanColors {
			parts[i] = string(c)
		}
		humans = strings.Join(parts, ", ")
	}
	sections := []string{
		"## Game situation",
		"Current turn: " + string(pc.CurrentColor),
		"Human players: " + humans,
		"### Players",
		pretty(pc.Players),
		"### Board",
		pretty(pc.Board),
		"### Recent actions",
		pretty(pc.RecentActions),
		"### Playable actions",
		pretty(pc.PlayableActions),
		"",
		instructions,
	}
	if withImage {
		sections = append(sections, "", imageNote)
	}
	return strings.Join(sections, "\n")
}
