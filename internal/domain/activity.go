package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Action is a structured trading action reported by a holdings source.
type Action string

const (
	ActionNew    Action = "New"
	ActionBuy    Action = "Buy"
	ActionAdd    Action = "Add"
	ActionReduce Action = "Reduce"
	ActionSell   Action = "Sell"
	ActionHold   Action = "Hold"
)

// Priority returns the rank used to pick the aggregate activity of a security.
// Buy and Add share a rank. Unknown actions rank below Hold.
func (a Action) Priority() int {
	switch a {
	case ActionNew:
		return 5
	case ActionBuy, ActionAdd:
		return 4
	case ActionSell:
		return 3
	case ActionReduce:
		return 2
	case ActionHold:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the action is one of the known values.
func (a Action) Valid() bool {
	return a.Priority() > 0
}

// Activity is an Action with an optional percentage magnitude.
type Activity struct {
	Action     Action   `json:"action"`
	Percentage *float64 `json:"percentage"`
}

// HoldActivity returns the neutral activity.
func HoldActivity() Activity {
	return Activity{Action: ActionHold}
}

func (a Activity) String() string {
	if a.Percentage == nil {
		return string(a.Action)
	}
	return fmt.Sprintf("%s %s%%", a.Action, strconv.FormatFloat(*a.Percentage, 'f', -1, 64))
}

var activityPctRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%?`)

// ParseActivity converts raw activity text such as "Add 15%" or "Reduce 8.5%"
// into an Activity. Empty text means Hold. Text with no recognizable action
// returns ErrMalformedFact.
func ParseActivity(text string) (Activity, error) {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return HoldActivity(), nil
	}

	var act Activity
	if m := activityPctRe.FindStringSubmatch(norm); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			act.Percentage = &pct
		}
	}

	switch {
	case strings.Contains(norm, "buy") || strings.HasPrefix(norm, "add"):
		if strings.Contains(norm, "add") {
			act.Action = ActionAdd
		} else {
			act.Action = ActionBuy
		}
	case strings.Contains(norm, "sell"):
		act.Action = ActionSell
	case strings.Contains(norm, "reduce"):
		act.Action = ActionReduce
	case strings.Contains(norm, "new"):
		act.Action = ActionNew
	case strings.Contains(norm, "hold"):
		act.Action = ActionHold
	default:
		return Activity{}, fmt.Errorf("%w: unrecognized activity %q", ErrMalformedFact, text)
	}
	return act, nil
}

// AggregateActivity picks the highest-priority action across the given facts.
// Ties keep the first one encountered; no facts means Hold.
func AggregateActivity(facts []HoldingFact) Action {
	best := ActionHold
	bestPriority := 0
	for _, f := range facts {
		if p := f.Activity.Action.Priority(); p > bestPriority {
			best = f.Activity.Action
			bestPriority = p
		}
	}
	return best
}

// UnmarshalJSON accepts either the structured object or a bare action string.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		parsed, err := ParseActivity(raw)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	type plain Activity
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to decode activity: %w", err)
	}
	*a = Activity(p)
	return nil
}
