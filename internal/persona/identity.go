package persona

import (
	"fmt"
	"math/rand"
	"regexp"
)

// Identity pins the facts the caller must keep straight for a whole call:
// one callback number and one incident address, no matter what the model
// improvises mid-response.
type Identity struct {
	CallbackNumber string
	Address        string
}

var callbackAreaCodes = []int{555, 667, 301, 443, 410}

// NewIdentity fixes a callback number for the call. Area codes come from a
// small plausible pool; exchange and line stay in ranges that cannot collide
// with real emergency numbers.
func NewIdentity(address string) Identity {
	area := callbackAreaCodes[rand.Intn(len(callbackAreaCodes))]
	exchange := 200 + rand.Intn(800)
	line := 1000 + rand.Intn(9000)
	return Identity{
		CallbackNumber: fmt.Sprintf("%d-%d-%d", area, exchange, line),
		Address:        address,
	}
}

var (
	phonePattern   = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	addressPattern = regexp.MustCompile(`\d{1,5}\s+[A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)?\s+(?:Street|St|Avenue|Ave|Road|Rd|Drive|Dr|Lane|Ln|Boulevard|Blvd|Court|Ct|Way|Place|Pl)\b`)
)

// Enforcer rewrites one response so invented numbers and addresses match the
// call's identity. The address swap happens at most once per response; a
// repeated mention usually refers back to the first and reads fine as is.
type Enforcer struct {
	id          Identity
	addressDone bool
}

func (id Identity) NewEnforcer() *Enforcer {
	return &Enforcer{id: id}
}

func (e *Enforcer) Apply(text string) string {
	out := phonePattern.ReplaceAllString(text, e.id.CallbackNumber)
	if e.id.Address != "" && !e.addressDone {
		if loc := addressPattern.FindStringIndex(out); loc != nil {
			if out[loc[0]:loc[1]] != e.id.Address {
				out = out[:loc[0]] + e.id.Address + out[loc[1]:]
			}
			e.addressDone = true
		}
	}
	return out
}
