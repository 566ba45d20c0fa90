package game

import "fmt"

// RejectionCode classifies why an action was refused. Rejections are normal
// protocol outcomes: they are reported back to the actor and never corrupt
// game state.
type RejectionCode string

const (
	// CodeInvalidAction: the action is illegal in the current phase or from
	// this actor (bidding out of turn, bidding during preview, double vote).
	CodeInvalidAction RejectionCode = "invalid_action"
	// CodeInsufficientFunds: the proposed bid exceeds the actor's balance.
	CodeInsufficientFunds RejectionCode = "insufficient_funds"
	// CodeExhaustedResource: no skip budget left, or the pool slot is gone.
	CodeExhaustedResource RejectionCode = "exhausted_resource"
	// CodeIdentityConflict: the name is already taken by a live player.
	CodeIdentityConflict RejectionCode = "identity_conflict"
	// CodePhaseClosed: the governing phase already resolved; the action is
	// stale and dropped.
	CodePhaseClosed RejectionCode = "phase_closed"
)

// ActionError is the structured rejection returned to the acting player.
type ActionError struct {
	Code    RejectionCode `json:"code"`
	Message string        `json:"message"`
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func rejectf(code RejectionCode, format string, args ...interface{}) *ActionError {
	return &ActionError{Code: code, Message: fmt.Sprintf(format, args...)}
}
