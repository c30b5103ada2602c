package device

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the closed set of device kinds the gateway accepts.
type Kind string

const (
	// KindAlarmclock is a bedside alarm clock with a temperature sensor.
	KindAlarmclock Kind = "ALARMCLOCK"

	// KindWatermixer is a timed hot-water mixing valve.
	KindWatermixer Kind = "WATERMIXER"
)

// AllKinds returns every supported kind.
func AllKinds() []Kind {
	return []Kind{KindAlarmclock, KindWatermixer}
}

// ParseKind converts a header or flag value into a Kind. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := behaviours[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	_, ok := behaviours[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Action is a command a client may ask a device to perform.
type Action string

// Recognised actions.
const (
	ActionGetData     Action = "GET_DATA"
	ActionTestAlarm   Action = "TEST_ALARM"
	ActionSetTime     Action = "SET_TIME"
	ActionSwitchState Action = "SWITCH_STATE"
	ActionStartMixing Action = "START_MIXING"
)

// Behaviour lists the actions a kind recognises, keyed to the names of
// the parameters each action requires.
type Behaviour struct {
	Kind    Kind
	actions map[Action][]string
}

var behaviours = map[Kind]Behaviour{
	KindAlarmclock: {
		Kind: KindAlarmclock,
		actions: map[Action][]string{
			ActionGetData:     nil,
			ActionTestAlarm:   nil,
			ActionSetTime:     {"time"},
			ActionSwitchState: {"state"},
		},
	},
	KindWatermixer: {
		Kind: KindWatermixer,
		actions: map[Action][]string{
			ActionGetData:     nil,
			ActionStartMixing: nil,
		},
	},
}

// BehaviourOf returns the Behaviour for k. The bool is false for an
// unknown kind.
func BehaviourOf(k Kind) (Behaviour, bool) {
	b, ok := behaviours[k]
	return b, ok
}

// Actions returns the recognised actions in sorted order.
func (b Behaviour) Actions() []Action {
	out := make([]Action, 0, len(b.actions))
	for a := range b.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Supports reports whether the kind recognises action.
func (b Behaviour) Supports(action Action) bool {
	_, ok := b.actions[action]
	return ok
}

// Validate checks that action is recognised and that params carries every
// required key. It never inspects parameter values.
func (b Behaviour) Validate(action Action, params map[string]any) error {
	required, ok := b.actions[action]
	if !ok {
		return fmt.Errorf("%w: %s does not accept %q", ErrUnsupportedAction, b.Kind, action)
	}
	for _, name := range required {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("%w: %s requires %q", ErrMissingParameter, action, name)
		}
	}
	return nil
}

// Device is a provisioned device credential.
type Device struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name,omitempty"`
	SecretHash string    `json:"-"` // never serialised
	CreatedAt  time.Time `json:"created_at"`
}
