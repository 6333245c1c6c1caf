package transcript

import (
	"strings"
)

// WorkflowCheck reports whether the canonical role order was observed
type WorkflowCheck struct {
	Expected       []string `json:"expected"`
	InOrder        bool     `json:"in_order"`
	Marker         string   `json:"marker,omitempty"`
	MarkerDetected bool     `json:"marker_detected"`
}

// CheckWorkflow tests whether expected appears as a subsequence of observed
// and whether any role message mentions marker.
func CheckWorkflow(observed []string, contents []string, expected []string, marker string) WorkflowCheck {
	check := WorkflowCheck{
		Expected: append([]string(nil), expected...),
		InOrder:  isSubsequence(expected, observed),
		Marker:   marker,
	}
	if marker != "" {
		for _, c := range contents {
			if strings.Contains(c, marker) {
				check.MarkerDetected = true
				break
			}
		}
	}
	return check
}

func isSubsequence(want, seq []string) bool {
	i := 0
	for _, s := range seq {
		if i == len(want) {
			break
		}
		if s == want[i] {
			i++
		}
	}
	return i == len(want)
}
