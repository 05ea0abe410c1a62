// Package resolver turns a conversation into an Intent, either with a
// hosted language model or with a deterministic rule set.
package resolver

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

var (
	phoneRe  = regexp.MustCompile(`(?:\+?91[\s-]?)?\b[6-9]\d{4}[\s-]?\d{5}\b`)
	tenureRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(months?|mos?|years?|yrs?)\b`)
	amountRe = regexp.MustCompile(`(?i)(?:₹|rs\.?|inr)?\s*(\d[\d,]*(?:\.\d+)?)\s*(lakhs?|lacs?|l|k|thousand)?\b`)
	yesRe    = regexp.MustCompile(`(?i)\b(yes|yeah|sure|ok(ay)?|proceed|go ahead|generate|sanction|letter)\b`)
)

// Rules is a keyword and pattern based resolver for development and tests.
// It reads only the latest user turn and the session state.
type Rules struct{}

// NewRules creates the resolver.
func NewRules() *Rules { return &Rules{} }

// Resolve implements port.IntentResolver.
func (Rules) Resolve(_ context.Context, s model.Session) (model.Intent, error) {
	msg := latestUserMessage(s)
	intent := extract(msg)

	_, hasAmount := s.RequestedAmount()
	hasAmount = hasAmount || intent.Amount.Valid

	switch {
	case s.Step().IsTerminal():
		intent.NextAction = valueobject.ActionRunUnderwriting
		intent.Reply = "Let me check on your application."
	case intent.Phone != "" && !s.KYCVerified():
		intent.NextAction = valueobject.ActionVerifyKYC
		intent.Reply = "Thanks! Let me verify your details."
	case !hasAmount:
		intent.NextAction = valueobject.ActionCollectAmount
		intent.Reply = "Hi, I'm Tara from Tata Capital. How much would you like to borrow?"
	case !s.KYCVerified():
		intent.NextAction = valueobject.ActionCollectPhone
		intent.Reply = "Great. Please share your registered 10-digit mobile number so I can verify your details."
	case s.Step().Equal(valueobject.StepSalaryRequired) && !s.SalaryUploaded():
		intent.NextAction = valueobject.ActionCollectSalary
		intent.Reply = "Please upload your latest salary slip to continue."
	case s.Step().Equal(valueobject.StepApproved):
		if yesRe.MatchString(msg) {
			intent.NextAction = valueobject.ActionGenerateSanction
			intent.Reply = "Generating your sanction letter."
		} else {
			intent.NextAction = valueobject.ActionNone
			intent.Reply = "Your loan is approved. Shall I generate your sanction letter?"
		}
	default:
		intent.NextAction = valueobject.ActionRunUnderwriting
		intent.Reply = "Let me check your eligibility."
	}
	return intent, nil
}

func latestUserMessage(s model.Session) string {
	turns := s.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// extract pulls a phone number, a tenure and an amount out of msg, in that
// order, so digits claimed by one are not read again as another.
func extract(msg string) model.Intent {
	var intent model.Intent

	if loc := phoneRe.FindStringIndex(msg); loc != nil {
		intent.Phone = msg[loc[0]:loc[1]]
		msg = msg[:loc[0]] + " " + msg[loc[1]:]
	}

	if m := tenureRe.FindStringSubmatchIndex(msg); m != nil {
		n, _ := strconv.Atoi(msg[m[2]:m[3]])
		if strings.HasPrefix(strings.ToLower(msg[m[4]:m[5]]), "y") {
			n *= 12
		}
		intent.TenureMonths = n
		msg = msg[:m[0]] + " " + msg[m[1]:]
	}

	for _, m := range amountRe.FindAllStringSubmatch(msg, -1) {
		digits := strings.ReplaceAll(m[1], ",", "")
		value, err := decimal.NewFromString(digits)
		if err != nil || !value.IsPositive() {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "lakh", "lakhs", "lac", "lacs", "l":
			value = value.Mul(decimal.NewFromInt(100_000))
		case "k", "thousand":
			value = value.Mul(decimal.NewFromInt(1_000))
		default:
			// Bare numbers below a thousand are more likely ages or counts.
			if value.LessThan(decimal.NewFromInt(1_000)) {
				continue
			}
		}
		intent.Amount = decimal.NewNullDecimal(value.Round(0))
		break
	}
	return intent
}
