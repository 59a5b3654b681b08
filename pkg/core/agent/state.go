package agent

import "fmt"

// mergeState folds a proposed partial-state update into the accumulated
// state. The merge is strictly additive: non-null proposed values
// overwrite keys, nothing is ever deleted. Keeping this in one function
// (rather than mutating at call sites) is what makes the "state only
// grows" invariant checkable in isolation.
func mergeState(state map[string]string, proposed map[string]any) {
	for key, value := range proposed {
		if value == nil {
			continue
		}
		text := stringify(value)
		if text == "" || text == "null" {
			continue
		}
		state[key] = text
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Codes arrive as bare numbers from sloppier models; render
		// them without an exponent so validation can complain about
		// the width instead of the notation.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
