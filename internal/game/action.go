package game

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActionType is the verb of an action.
type ActionType string

const (
	BuildSettlement    ActionType = "BUILD_SETTLEMENT"
	BuildCity          ActionType = "BUILD_CITY"
	Roll               ActionType = "ROLL"
	EndTurn            ActionType = "END_TURN"
	BuyDevelopmentCard ActionType = "BUY_DEVELOPMENT_CARD"
	PlayKnightCard     ActionType = "PLAY_KNIGHT_CARD"
	MoveRobber         ActionType = "MOVE_ROBBER"
	Discard            ActionType = "DISCARD"
	MaritimeTrade      ActionType = "MARITIME_TRADE"
	OfferTrade         ActionType = "OFFER_TRADE"
	AcceptTrade        ActionType = "ACCEPT_TRADE"
	RejectTrade        ActionType = "REJECT_TRADE"
	CancelTrade        ActionType = "CANCEL_TRADE"
)

var actionTypes = map[ActionType]struct{}{
	BuildSettlement: {}, BuildCity: {}, Roll: {}, EndTurn: {},
	BuyDevelopmentCard: {}, PlayKnightCard: {}, MoveRobber: {}, Discard: {},
	MaritimeTrade: {}, OfferTrade: {}, AcceptTrade: {}, RejectTrade: {},
	CancelTrade: {},
}

// Known reports whether t is a recognised verb.
func (t ActionType) Known() bool {
	_, ok := actionTypes[t]
	return ok
}

// takesSite reports whether the action value is a site index.
func (t ActionType) takesSite() bool {
	return t == BuildSettlement || t == BuildCity || t == MoveRobber
}

// takesOffer reports whether the action value is a resource exchange.
func (t ActionType) takesOffer() bool {
	return t == MaritimeTrade || t == OfferTrade
}

// IsTradeResponse reports whether t is part of the negotiation protocol.
func (t ActionType) IsTradeResponse() bool {
	return t == AcceptTrade || t == RejectTrade || t == CancelTrade
}

// TradeOffer is a proposed exchange from the initiator's point of view.
type TradeOffer struct {
	Give ResourceVector `json:"give"`
	Want ResourceVector `json:"want"`
}

func (o TradeOffer) String() string {
	return fmt.Sprintf("%s for %s", o.Give, o.Want)
}

// Outcome records what chance resolved while an action was applied.
type Outcome struct {
	Dice      []int           `json:"dice,omitempty"`
	Stolen    *Resource       `json:"stolen,omitempty"`
	Discarded *ResourceVector `json:"discarded,omitempty"`
	Card      DevCard         `json:"card,omitempty"`
	Partner   Color           `json:"partner,omitempty"`
	Accepted  *bool           `json:"accepted,omitempty"`
}

// Action is one (actor, verb, value) move. Site is meaningful for
// BUILD_SETTLEMENT, BUILD_CITY and MOVE_ROBBER; Offer for MARITIME_TRADE and
// OFFER_TRADE. Outcome is filled in by Apply and ignored when matching.
type Action struct {
	Color   Color
	Type    ActionType
	Site    int
	Offer   TradeOffer
	Outcome *Outcome
}

// NewAction builds an action that carries no value.
func NewAction(c Color, t ActionType) Action {
	return Action{Color: c, Type: t}
}

// SiteAction builds an action targeting a site.
func SiteAction(c Color, t ActionType, site int) Action {
	return Action{Color: c, Type: t, Site: site}
}

// OfferAction builds a trade action.
func OfferAction(c Color, t ActionType, offer TradeOffer) Action {
	return Action{Color: c, Type: t, Offer: offer}
}

// Matches reports whether two actions denote the same move.
func (a Action) Matches(b Action) bool {
	if a.Color != b.Color || a.Type != b.Type {
		return false
	}
	switch {
	case a.Type.takesSite():
		return a.Site == b.Site
	case a.Type.takesOffer():
		return a.Offer == b.Offer
	}
	return true
}

func (a Action) String() string {
	switch {
	case a.Type.takesSite():
		return fmt.Sprintf("%s %s %d", a.Color, a.Type, a.Site)
	case a.Type.takesOffer():
		return fmt.Sprintf("%s %s %s", a.Color, a.Type, a.Offer)
	}
	return fmt.Sprintf("%s %s", a.Color, a.Type)
}

type actionJSON struct {
	Color   Color           `json:"color"`
	Type    ActionType      `json:"type"`
	Value   json.RawMessage `json:"value"`
	Outcome *Outcome        `json:"outcome,omitempty"`
}

func (a Action) value() (json.RawMessage, error) {
	switch {
	case a.Type.takesSite():
		return json.Marshal(a.Site)
	case a.Type.takesOffer():
		return json.Marshal(a.Offer)
	}
	return json.RawMessage("null"), nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	v, err := a.value()
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionJSON{Color: a.Color, Type: a.Type, Value: v, Outcome: a.Outcome})
}

// UnmarshalJSON accepts either the object form written by MarshalJSON or the
// compact triple form ["RED", "BUILD_CITY", 4] used by clients.
func (a *Action) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw actionJSON
	if len(b) > 0 && b[0] == '[' {
		var triple []json.RawMessage
		if err := json.Unmarshal(b, &triple); err != nil {
			return err
		}
		if len(triple) < 2 || len(triple) > 3 {
			return fmt.Errorf("action must be [color, type, value], got %d elements", len(triple))
		}
		if err := json.Unmarshal(triple[0], &raw.Color); err != nil {
			return fmt.Errorf("action color: %w", err)
		}
		if err := json.Unmarshal(triple[1], &raw.Type); err != nil {
			return fmt.Errorf("action type: %w", err)
		}
		if len(triple) == 3 {
			raw.Value = triple[2]
		}
	} else if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	color, err := ParseColor(string(raw.Color))
	if err != nil {
		return err
	}
	if !raw.Type.Known() {
		return fmt.Errorf("unknown action type %q", raw.Type)
	}
	out := Action{Color: color, Type: raw.Type, Outcome: raw.Outcome}
	hasValue := len(raw.Value) > 0 && !bytes.Equal(raw.Value, []byte("null"))
	switch {
	case raw.Type.takesSite():
		if !hasValue {
			return fmt.Errorf("%s requires a site", raw.Type)
		}
		if err := json.Unmarshal(raw.Value, &out.Site); err != nil {
			return fmt.Errorf("%s site: %w", raw.Type, err)
		}
	case raw.Type.takesOffer():
		if !hasValue {
			return fmt.Errorf("%s requires an offer", raw.Type)
		}
		if err := json.Unmarshal(raw.Value, &out.Offer); err != nil {
			return fmt.Errorf("%s offer: %w", raw.Type, err)
		}
	}
	*a = out
	return nil
}
