package game

import "slices"

// TradePhase is the state of the negotiation protocol.
type TradePhase string

const (
	TradeNone      TradePhase = "NONE"
	TradeProposed  TradePhase = "PROPOSED"
	TradeResolving TradePhase = "RESOLVING"
)

// Trade is an in-flight domestic trade. Accepted and Responded are aligned
// with seat order; ReturnSeat is the actor that held control before the offer.
type Trade struct {
	Initiator  int        `json:"initiator"`
	Offer      TradeOffer `json:"offer"`
	Accepted   []bool     `json:"accepted"`
	Responded  []bool     `json:"responded"`
	Resolving  bool       `json:"resolving"`
	ReturnSeat int        `json:"return_seat"`
}

func (t *Trade) clone() *Trade {
	c := *t
	c.Accepted = slices.Clone(t.Accepted)
	c.Responded = slices.Clone(t.Responded)
	return &c
}

// nextResponder returns the first seat after from, in rotation order, that is
// not the initiator and has not responded. It returns -1 when none is left.
func (t *Trade) nextResponder(from int) int {
	n := len(t.Responded)
	for step := 1; step < n; step++ {
		seat := (from + step) % n
		if seat != t.Initiator && !t.Responded[seat] {
			return seat
		}
	}
	return -1
}

// firstAcceptee is the first accepting seat after the initiator.
func (t *Trade) firstAcceptee() int {
	n := len(t.Accepted)
	for step := 1; step < n; step++ {
		seat := (t.Initiator + step) % n
		if t.Accepted[seat] {
			return seat
		}
	}
	return -1
}

func validOffer(o TradeOffer) string {
	switch {
	case o.Give.hasNegative() || o.Want.hasNegative():
		return "trade amounts must not be negative"
	case o.Give.IsZero() || o.Want.IsZero():
		return "trade must give and want something"
	}
	for r := range o.Give {
		if o.Give[r] > 0 && o.Want[r] > 0 {
			return "trade cannot give and want the same resource"
		}
	}
	return ""
}

func (s *State) applyOfferTrade(a Action) {
	seat := s.CurrentSeat
	n := s.Seats()
	t := &Trade{
		Initiator:  seat,
		Offer:      a.Offer,
		Accepted:   make([]bool, n),
		Responded:  make([]bool, n),
		Resolving:  true,
		ReturnSeat: seat,
	}
	s.TradeOffers++
	s.Trade = t
	s.CurrentSeat = t.nextResponder(seat)
	s.Prompt = PromptDecideTrade
}

func (s *State) applyAcceptTrade() *Outcome {
	t := s.Trade
	seat := s.CurrentSeat
	t.Accepted[seat] = true
	t.Responded[seat] = true

	if next := t.nextResponder(seat); next >= 0 {
		s.CurrentSeat = next
		return nil
	}

	partner := t.firstAcceptee()
	init := &s.Players[t.Initiator]
	other := &s.Players[partner]
	init.Resources = init.Resources.Sub(t.Offer.Give).Add(t.Offer.Want)
	other.Resources = other.Resources.Sub(t.Offer.Want).Add(t.Offer.Give)

	accepted := true
	s.endTrade()
	return &Outcome{Partner: s.Colors[partner], Accepted: &accepted}
}

func (s *State) applyRejectTrade() *Outcome {
	s.Trade.Responded[s.CurrentSeat] = true
	s.endTrade()
	accepted := false
	return &Outcome{Accepted: &accepted}
}

func (s *State) applyCancelTrade() *Outcome {
	s.endTrade()
	accepted := false
	return &Outcome{Accepted: &accepted}
}

func (s *State) endTrade() {
	s.CurrentSeat = s.Trade.ReturnSeat
	s.Prompt = PromptPlayTurn
	s.Trade = nil
}
