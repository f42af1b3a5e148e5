package game

// LegalActions enumerates the moves available in s. The list is computed from
// scratch on every call. Domestic trade offers are listed one-for-one only;
// any well-formed offer is accepted by Apply.
func (s *State) LegalActions() []Action {
	if s.IsTerminal() {
		return nil
	}
	c := s.CurrentColor()
	p := s.Players[s.CurrentSeat]

	switch s.Prompt {
	case PromptBuildInitialSettlement:
		return s.emptySiteActions(c)

	case PromptDiscard:
		return []Action{NewAction(c, Discard)}

	case PromptMoveRobber:
		actions := make([]Action, 0, len(s.Sites)-1)
		for i := range s.Sites {
			if i != s.Robber {
				actions = append(actions, SiteAction(c, MoveRobber, i))
			}
		}
		return actions

	case PromptDecideTrade:
		var actions []Action
		if p.Resources.Covers(s.Trade.Offer.Want) {
			actions = append(actions, NewAction(c, AcceptTrade))
		}
		actions = append(actions, NewAction(c, RejectTrade))
		actions = append(actions, NewAction(s.Colors[s.Trade.Initiator], CancelTrade))
		return actions

	case PromptPlayTurn:
		return s.turnActions(c, p)
	}
	return nil
}

func (s *State) turnActions(c Color, p PlayerState) []Action {
	var actions []Action
	if s.canPlayKnight(p) {
		actions = append(actions, NewAction(c, PlayKnightCard))
	}
	if !s.HasRolled {
		return append(actions, NewAction(c, Roll))
	}

	actions = append(actions, NewAction(c, EndTurn))
	if p.Settlements < MaxSettlements && p.Resources.Covers(SettlementCost) {
		actions = append(actions, s.emptySiteActions(c)...)
	}
	if p.Cities < MaxCities && p.Resources.Covers(CityCost) {
		for _, i := range s.buildingsOf(c, Settlement) {
			actions = append(actions, SiteAction(c, BuildCity, i))
		}
	}
	if len(s.DevDeck) > 0 && p.Resources.Covers(DevelopmentCost) {
		actions = append(actions, NewAction(c, BuyDevelopmentCard))
	}
	for _, give := range Resources {
		if p.Resources[give] < 4 {
			continue
		}
		for _, want := range Resources {
			if want != give {
				actions = append(actions, OfferAction(c, MaritimeTrade, TradeOffer{
					Give: Single(give, 4), Want: Single(want, 1),
				}))
			}
		}
	}
	if s.TradeOffers < MaxTradeOffersPerTurn {
		for _, give := range Resources {
			if p.Resources[give] < 1 {
				continue
			}
			for _, want := range Resources {
				if want != give {
					actions = append(actions, OfferAction(c, OfferTrade, TradeOffer{
						Give: Single(give, 1), Want: Single(want, 1),
					}))
				}
			}
		}
	}
	return actions
}

func (s *State) emptySiteActions(c Color) []Action {
	var actions []Action
	for i, site := range s.Sites {
		if site.Building == NoBuilding {
			actions = append(actions, SiteAction(c, BuildSettlement, i))
		}
	}
	return actions
}

func (s *State) canPlayKnight(p PlayerState) bool {
	return !s.PlayedDevCard && p.Knights-p.NewKnights > 0
}

// IsLegal reports whether a may be applied to s, with a reason when it may not.
func (s *State) IsLegal(a Action) (bool, string) {
	if s.IsTerminal() {
		return false, "game is over"
	}
	if !a.Type.Known() {
		return false, "unknown action type"
	}
	if s.Seat(a.Color) < 0 {
		return false, "color is not seated"
	}
	if !s.MayAct(a.Color) {
		return false, "not this color's turn"
	}

	if a.Type == OfferTrade {
		return s.offerLegal(a)
	}
	for _, legal := range s.LegalActions() {
		if legal.Matches(a) {
			return true, ""
		}
	}
	return false, "not playable in " + string(s.Prompt)
}

func (s *State) offerLegal(a Action) (bool, string) {
	switch {
	case s.Prompt != PromptPlayTurn || a.Color != s.CurrentColor():
		return false, "trades can only be offered on your own turn"
	case !s.HasRolled:
		return false, "trades can only be offered after rolling"
	case s.TradeOffers >= MaxTradeOffersPerTurn:
		return false, "trade offer limit reached this turn"
	}
	if reason := validOffer(a.Offer); reason != "" {
		return false, reason
	}
	if !s.Players[s.CurrentSeat].Resources.Covers(a.Offer.Give) {
		return false, "not enough resources to offer"
	}
	return true, ""
}
