package domain

// Consensus converts a pattern's verification set into a pattern phase.
// The even-split tie-break is a deployment choice and lives on
// ConsensusPolicy instead of being hard-coded.

// TieBreak decides the outcome when an even panel splits with both sides at
// quorum.
type TieBreak string

const (
	// TieBreakVerified keeps the suspected pattern standing unless an
	// actual majority denies it.
	TieBreakVerified TieBreak = "Verified"
	TieBreakRejected TieBreak = "Rejected"
)

type ConsensusPolicy struct {
	TieBreak TieBreak
}

func DefaultConsensusPolicy() ConsensusPolicy {
	return ConsensusPolicy{TieBreak: TieBreakVerified}
}

// Quorum is the number of distinct experts required to settle a pattern:
// ceil(n/2) of the panel.
func Quorum(panelSize int) int {
	if panelSize <= 0 {
		return 1
	}
	return (panelSize + 1) / 2
}

// Evaluate returns the phase implied by the current verification set. It is a
// pure function of the set, the pattern, and the panel size; submission order
// never matters, so concurrent re-evaluations converge on the same answer.
//
// The creator of an expert-created pattern is auto-counted as ConfirmFound
// until they submit an explicit verdict of their own.
func (p ConsensusPolicy) Evaluate(pattern *Pattern, verifications []Verification, panelSize int) PatternPhase {
	var confirm, deny int
	creatorVoted := false
	for _, v := range verifications {
		if v.ExpertID == pattern.CreatedByExpertID {
			creatorVoted = true
		}
		switch v.Verdict {
		case VerdictConfirmFound:
			confirm++
		case VerdictDenyFound:
			deny++
		}
	}
	if !pattern.AutoGenerated && pattern.CreatedByExpertID != "" && !creatorVoted {
		confirm++
	}

	q := Quorum(panelSize)
	switch {
	case confirm >= q && deny >= q:
		if p.TieBreak == TieBreakRejected {
			return PatternRejected
		}
		return PatternVerified
	case confirm >= q:
		return PatternVerified
	case deny >= q:
		return PatternRejected
	}

	if len(verifications) == 0 {
		// Nobody has spoken yet; keep the creation phase.
		return pattern.Phase
	}
	return PatternUnderDiscussion
}
