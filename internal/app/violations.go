package app

import "livequiz-service/internal/domain"

// ViolationDecision is the outcome of evaluating one violation event
// against the quiz settings and a participant's running counters.
type ViolationDecision struct {
	Action        domain.ViolationAction
	Counts        domain.ViolationCounts
	Total         int
	PenaltyPoints int
	Flagged       bool
}

// DecideViolation applies the violation policy. Pure: it takes the counters
// as they were before this event and returns the incremented counts plus
// the action to apply.
//
// Once the aggregate count reaches MaxViolations the action is close and the
// participant is flagged, regardless of per-type settings. Below the cap,
// fullscreen_exit and tab_switch follow their configured actions; copy_paste
// alone only warns and feeds the aggregate count.
func DecideViolation(counts domain.ViolationCounts, vtype domain.ViolationType, s domain.Settings) ViolationDecision {
	switch vtype {
	case domain.ViolationFullscreenExit:
		counts.FullscreenExit++
	case domain.ViolationTabSwitch:
		counts.TabSwitch++
	case domain.ViolationCopyPaste:
		counts.CopyPaste++
	}
	total := counts.Total()

	d := ViolationDecision{
		Action:        domain.ActionWarn,
		Counts:        counts,
		Total:         total,
		PenaltyPoints: s.ViolationPenaltyPoints,
	}

	if s.MaxViolations > 0 && total >= s.MaxViolations {
		d.Action = domain.ActionClose
		d.Flagged = true
		return d
	}

	switch vtype {
	case domain.ViolationFullscreenExit:
		if a := s.FullscreenExitAction; a != "" {
			d.Action = a
		}
	case domain.ViolationTabSwitch:
		if a := s.AltTabAction; a != "" {
			d.Action = a
		}
	}
	return d
}

// ApplyPenalty subtracts the penalty from score, clamped at zero.
func ApplyPenalty(score, penalty int) int {
	if penalty <= 0 {
		return score
	}
	score -= penalty
	if score < 0 {
		return 0
	}
	return score
}
