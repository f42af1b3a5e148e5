package game

import (
	rand "math/rand/v2"

	"github.com/lox/settlersforbots/internal/randutil"
)

// Apply validates a against s and returns the resulting state. s is left
// untouched. The returned action carries the resolved Outcome, if any. All
// randomness comes from the game seed and the state index, so applying the
// same action to the same state always produces the same result.
func Apply(s *State, a Action) (*State, Action, error) {
	if ok, reason := s.IsLegal(a); !ok {
		return nil, a, invalid(&a, "%s", reason)
	}

	next := s.Clone()
	rng := randutil.Derive(s.Seed, s.Index)
	a.Outcome = next.apply(a, rng)
	next.Index++
	next.checkWinner()
	return next, a, nil
}

func (s *State) apply(a Action, rng *rand.Rand) *Outcome {
	p := &s.Players[s.CurrentSeat]
	switch a.Type {
	case BuildSettlement:
		s.Sites[a.Site].Owner = a.Color
		s.Sites[a.Site].Building = Settlement
		p.Settlements++
		if s.InitialBuildPhase {
			s.advancePlacement(a.Site)
		} else {
			p.Resources = p.Resources.Sub(SettlementCost)
		}

	case BuildCity:
		s.Sites[a.Site].Building = City
		p.Settlements--
		p.Cities++
		p.Resources = p.Resources.Sub(CityCost)

	case Roll:
		return s.applyRoll(rng)

	case Discard:
		return s.applyDiscard(rng)

	case MoveRobber:
		return s.applyMoveRobber(a.Site, rng)

	case PlayKnightCard:
		p.Knights--
		p.PlayedKnights++
		s.PlayedDevCard = true
		s.updateLargestArmy()
		s.Prompt = PromptMoveRobber

	case BuyDevelopmentCard:
		p.Resources = p.Resources.Sub(DevelopmentCost)
		card := s.DevDeck[0]
		s.DevDeck = s.DevDeck[1:]
		switch card {
		case Knight:
			p.Knights++
			p.NewKnights++
		case VictoryPoint:
			p.VictoryCards++
		}
		return &Outcome{Card: card}

	case MaritimeTrade:
		p.Resources = p.Resources.Sub(a.Offer.Give).Add(a.Offer.Want)

	case OfferTrade:
		s.applyOfferTrade(a)

	case AcceptTrade:
		return s.applyAcceptTrade()

	case RejectTrade:
		return s.applyRejectTrade()

	case CancelTrade:
		return s.applyCancelTrade()

	case EndTurn:
		s.advanceTurn()
	}
	return nil
}

// advancePlacement moves the initial build phase along in snake order: every
// seat places once in order, then once more in reverse. The second placement
// yields one card of the site's resource.
func (s *State) advancePlacement(site int) {
	n := s.Seats()
	if s.Placements >= n {
		s.Players[s.CurrentSeat].Resources[s.Sites[site].Resource]++
	}
	s.Placements++

	switch {
	case s.Placements == 2*n:
		s.InitialBuildPhase = false
		s.TurnSeat = 0
		s.CurrentSeat = 0
		s.Prompt = PromptPlayTurn
	case s.Placements < n:
		s.CurrentSeat = s.Placements
		s.TurnSeat = s.Placements
	default:
		s.CurrentSeat = 2*n - 1 - s.Placements
		s.TurnSeat = s.CurrentSeat
	}
}

func (s *State) applyRoll(rng *rand.Rand) *Outcome {
	d1, d2 := rng.IntN(6)+1, rng.IntN(6)+1
	s.HasRolled = true
	sum := d1 + d2

	if sum == 7 {
		s.PendingDiscards = s.PendingDiscards[:0]
		for i, p := range s.Players {
			if p.Resources.Total() > DiscardLimit {
				s.PendingDiscards = append(s.PendingDiscards, i)
			}
		}
		s.nextDiscardOrRobber()
		return &Outcome{Dice: []int{d1, d2}}
	}

	for i, site := range s.Sites {
		if site.Number != sum || i == s.Robber || site.Owner == "" {
			continue
		}
		owner := &s.Players[s.Seat(site.Owner)]
		owner.Resources[site.Resource] += site.Yield()
	}
	return &Outcome{Dice: []int{d1, d2}}
}

func (s *State) nextDiscardOrRobber() {
	if len(s.PendingDiscards) > 0 {
		s.CurrentSeat = s.PendingDiscards[0]
		s.Prompt = PromptDiscard
		return
	}
	s.PendingDiscards = nil
	s.CurrentSeat = s.TurnSeat
	s.Prompt = PromptMoveRobber
}

func (s *State) applyDiscard(rng *rand.Rand) *Outcome {
	p := &s.Players[s.CurrentSeat]
	var dropped ResourceVector
	for range p.Resources.Total() / 2 {
		r := p.Resources.nth(rng.IntN(p.Resources.Total()))
		p.Resources[r]--
		dropped[r]++
	}
	s.PendingDiscards = s.PendingDiscards[1:]
	s.nextDiscardOrRobber()
	return &Outcome{Discarded: &dropped}
}

func (s *State) applyMoveRobber(site int, rng *rand.Rand) *Outcome {
	s.Robber = site
	s.CurrentSeat = s.TurnSeat
	s.Prompt = PromptPlayTurn

	owner := s.Sites[site].Owner
	if owner == "" || owner == s.TurnColor() {
		return nil
	}
	victim := &s.Players[s.Seat(owner)]
	if victim.Resources.Total() == 0 {
		return nil
	}
	r := victim.Resources.nth(rng.IntN(victim.Resources.Total()))
	victim.Resources[r]--
	s.Players[s.TurnSeat].Resources[r]++
	return &Outcome{Stolen: &r}
}

func (s *State) updateLargestArmy() {
	p := s.Players[s.CurrentSeat]
	if p.PlayedKnights < largestArmyMinimum || s.LargestArmy == p.Color {
		return
	}
	if s.LargestArmy != "" && s.Player(s.LargestArmy).PlayedKnights >= p.PlayedKnights {
		return
	}
	s.LargestArmy = p.Color
}

func (s *State) advanceTurn() {
	s.TurnSeat = (s.TurnSeat + 1) % s.Seats()
	s.CurrentSeat = s.TurnSeat
	s.Prompt = PromptPlayTurn
	s.HasRolled = false
	s.PlayedDevCard = false
	s.TradeOffers = 0
	for i := range s.Players {
		s.Players[i].NewKnights = 0
	}
	s.Turns++
}

func (s *State) checkWinner() {
	if s.InitialBuildPhase {
		return
	}
	if c := s.TurnColor(); s.ActualVictoryPoints(c) >= s.VictoryPoints {
		s.Winner = c
	}
}
