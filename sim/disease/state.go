package disease

import (
	"fmt"
	"strings"
)

// State is the activity level of the neovascular lesion.
type State int

const (
	// Naive is the pre-observation state. It is transient: the first
	// transition always leaves it.
	Naive State = iota
	Stable
	Active
	HighlyActive
)

// AllStates lists every state in draw order. Categorical sampling walks
// this slice, so its order is part of the determinism contract.
var AllStates = []State{Naive, Stable, Active, HighlyActive}

var stateNames = map[State]string{
	Naive:        "NAIVE",
	Stable:       "STABLE",
	Active:       "ACTIVE",
	HighlyActive: "HIGHLY_ACTIVE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid reports whether s is one of the four defined states.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// HasFluid reports whether the state counts as fluid detected at a visit.
func (s State) HasFluid() bool {
	return s == Active || s == HighlyActive
}

// ParseState accepts the upper- or lower-case state name.
func ParseState(name string) (State, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for s, n := range stateNames {
		if n == upper {
			return s, nil
		}
	}
	return Naive, fmt.Errorf("unknown disease state %q; valid: NAIVE, STABLE, ACTIVE, HIGHLY_ACTIVE", name)
}
