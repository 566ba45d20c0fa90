package models

// GameAction is the wire format for every inbound client message. The
// transport layer decodes the frame and attaches the actor identity from the
// session; the payload is interpreted per action type by the game core.
type GameAction struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Inbound action types understood by the game core.
const (
	ActionJoinGame         = "joinGame"
	ActionSelectCard       = "selectCard"
	ActionVoteStartAuction = "voteStartAuction"
	ActionPlaceBid         = "placeBid"
	ActionSkipBid          = "skipBid"
	ActionPassBid          = "passBid"
	ActionConfirmPurchase  = "confirmPurchase"
	ActionPickPool         = "pickPokemon"
	ActionVoteReset        = "voteReset"
)

// PayloadInt extracts an integer field from a decoded JSON payload.
// JSON numbers arrive as float64.
func (a GameAction) PayloadInt(key string) (int, bool) {
	if a.Payload == nil {
		return 0, false
	}
	switch v := a.Payload[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// PayloadString extracts a string field from a decoded JSON payload.
func (a GameAction) PayloadString(key string) (string, bool) {
	if a.Payload == nil {
		return "", false
	}
	s, ok := a.Payload[key].(string)
	return s, ok
}

// PayloadBool extracts a boolean field from a decoded JSON payload.
func (a GameAction) PayloadBool(key string) (bool, bool) {
	if a.Payload == nil {
		return false, false
	}
	b, ok := a.Payload[key].(bool)
	return b, ok
}
