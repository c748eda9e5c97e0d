package model

import (
	"strconv"
	"strings"
)

// Phase identifies one of the three analysis passes.
type Phase int

const (
	PhaseTriage  Phase = 1
	PhaseEnhance Phase = 2
	PhaseInsight Phase = 3
)

func (p Phase) String() string {
	switch p {
	case PhaseTriage:
		return "1_triage"
	case PhaseEnhance:
		return "2_enhance"
	case PhaseInsight:
		return "3_insight"
	default:
		return "phase_" + strconv.Itoa(int(p))
	}
}

// AnalysisDecision is the ordered list of phases to run for a message.
type AnalysisDecision struct {
	Phases []Phase `json:"phases"`
	Reason string  `json:"reason"`
}

// Includes reports whether p is part of the decision.
func (d AnalysisDecision) Includes(p Phase) bool {
	for _, q := range d.Phases {
		if q == p {
			return true
		}
	}
	return false
}

// Highest returns the deepest phase selected.
func (d AnalysisDecision) Highest() Phase {
	h := PhaseTriage
	for _, p := range d.Phases {
		if p > h {
			h = p
		}
	}
	return h
}

// String renders the decision as "1,2,3".
func (d AnalysisDecision) String() string {
	parts := make([]string, len(d.Phases))
	for i, p := range d.Phases {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}
