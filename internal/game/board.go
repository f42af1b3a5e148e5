package game

import (
	rand "math/rand/v2"
)

// DevCard is a development card kind.
type DevCard string

const (
	Knight       DevCard = "KNIGHT"
	VictoryPoint DevCard = "VICTORY_POINT"
)

const (
	numSites        = 24
	numKnightCards  = 14
	numVictoryCards = 5

	MaxSettlements = 5
	MaxCities      = 4

	// MaxTradeOffersPerTurn bounds domestic trade proposals per turn.
	MaxTradeOffersPerTurn = 1

	// DiscardLimit is the hand size above which a seven forces a discard.
	DiscardLimit = 7

	// DefaultVictoryPoints is the points needed to win.
	DefaultVictoryPoints = 10

	largestArmyMinimum = 3
	largestArmyPoints  = 2
)

// Building is what stands on a site.
type Building string

const (
	NoBuilding Building = ""
	Settlement Building = "SETTLEMENT"
	City       Building = "CITY"
)

// Site is an abstract production location: whenever its number is rolled the
// owner collects its resource, one card per settlement and two per city.
type Site struct {
	Resource Resource `json:"resource"`
	Number   int      `json:"number"`
	Owner    Color    `json:"owner,omitempty"`
	Building Building `json:"building,omitempty"`
}

// Yield is the number of cards the site produces for its owner.
func (s Site) Yield() int {
	switch s.Building {
	case Settlement:
		return 1
	case City:
		return 2
	}
	return 0
}

var (
	siteResources = [numSites]Resource{
		Wood, Wood, Wood, Wood, Wood,
		Brick, Brick, Brick, Brick,
		Sheep, Sheep, Sheep, Sheep, Sheep,
		Wheat, Wheat, Wheat, Wheat, Wheat,
		Ore, Ore, Ore, Ore, Ore,
	}
	siteNumbers = [numSites]int{
		2, 3, 3, 4, 4, 5, 5, 6, 6, 8, 8, 9,
		9, 10, 10, 11, 11, 12, 3, 4, 5, 6, 8, 9,
	}
)

func newSites(rng *rand.Rand) []Site {
	resources := siteResources
	numbers := siteNumbers
	rng.Shuffle(len(resources), func(i, j int) { resources[i], resources[j] = resources[j], resources[i] })
	rng.Shuffle(len(numbers), func(i, j int) { numbers[i], numbers[j] = numbers[j], numbers[i] })

	sites := make([]Site, numSites)
	for i := range sites {
		sites[i] = Site{Resource: resources[i], Number: numbers[i]}
	}
	return sites
}

func newDevDeck(rng *rand.Rand) []DevCard {
	deck := make([]DevCard, 0, numKnightCards+numVictoryCards)
	for range numKnightCards {
		deck = append(deck, Knight)
	}
	for range numVictoryCards {
		deck = append(deck, VictoryPoint)
	}
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

// DiceProbability is the chance a two-dice roll sums to n.
func DiceProbability(n int) float64 {
	if n < 2 || n > 12 {
		return 0
	}
	ways := 6 - abs(n-7)
	return float64(ways) / 36
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
