package valueobject

import (
	"fmt"
	"strings"
)

// NextAction is the step the intent resolver suggests for the current turn.
type NextAction struct {
	value string
}

const (
	actionCollectAmount    = "collect_amount"
	actionCollectPhone     = "collect_phone"
	actionVerifyKYC        = "verify_kyc"
	actionCollectSalary    = "collect_salary"
	actionRunUnderwriting  = "run_underwriting"
	actionGenerateSanction = "generate_sanction"
	actionReject           = "reject"
	actionNone             = "none"
)

var (
	ActionCollectAmount    = NextAction{value: actionCollectAmount}
	ActionCollectPhone     = NextAction{value: actionCollectPhone}
	ActionVerifyKYC        = NextAction{value: actionVerifyKYC}
	ActionCollectSalary    = NextAction{value: actionCollectSalary}
	ActionRunUnderwriting  = NextAction{value: actionRunUnderwriting}
	ActionGenerateSanction = NextAction{value: actionGenerateSanction}
	ActionReject           = NextAction{value: actionReject}
	ActionNone             = NextAction{value: actionNone}
)

var validNextActions = map[string]NextAction{
	actionCollectAmount:    ActionCollectAmount,
	actionCollectPhone:     ActionCollectPhone,
	actionVerifyKYC:        ActionVerifyKYC,
	actionCollectSalary:    ActionCollectSalary,
	actionRunUnderwriting:  ActionRunUnderwriting,
	actionGenerateSanction: ActionGenerateSanction,
	actionReject:           ActionReject,
	actionNone:             ActionNone,
}

// NewNextAction parses a tag. Resolvers sometimes answer "null" or nothing,
// both of which mean no action.
func NewNextAction(s string) (NextAction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "null" {
		return ActionNone, nil
	}
	v, ok := validNextActions[s]
	if !ok {
		return NextAction{}, fmt.Errorf("invalid next action: %q", s)
	}
	return v, nil
}

// String returns the tag.
func (a NextAction) String() string {
	if a.value == "" {
		return actionNone
	}
	return a.value
}

// Equal returns true when both actions carry the same tag.
func (a NextAction) Equal(other NextAction) bool { return a.String() == other.String() }
