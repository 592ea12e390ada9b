package evaluation

// Side identifies a submission. The zero value means no side.
type Side string

const (
	SideNone Side = ""
	SideA    Side = "a"
	SideB    Side = "b"
)

// Tier is the display bucket for a feature score.
type Tier string

const (
	TierHigh Tier = "high"
	TierMid  Tier = "mid"
	TierLow  Tier = "low"
)

// Badge labels a submission card.
type Badge string

const (
	BadgeWinner   Badge = "Winner"
	BadgeRejected Badge = "Rejected"
	BadgeTie      Badge = "Tie"
)

// Verdict is the presentation-ready reading of a Result.
type Verdict struct {
	Winner Side `json:"winner"`
}

// HasWinner reports whether one submission won outright.
func (v Verdict) HasWinner() bool {
	return v.Winner != SideNone
}

// Badge returns the card badge for side.
func (v Verdict) Badge(side Side) Badge {
	switch {
	case !v.HasWinner():
		return BadgeTie
	case v.Winner == side:
		return BadgeWinner
	default:
		return BadgeRejected
	}
}

// Interpret derives the winner of a Result.
//
// Trap decisions are won by the only submission holding a positive score;
// when neither or both do, there is no winner. Normal decisions are won by
// the strictly greater total; equal or missing totals mean no winner.
func Interpret(result Result) Verdict {
	if result.DecisionType == DecisionTrapDetected {
		aPositive := anyPositive(result.Analysis.SubmissionA)
		bPositive := anyPositive(result.Analysis.SubmissionB)
		switch {
		case aPositive && !bPositive:
			return Verdict{Winner: SideA}
		case bPositive && !aPositive:
			return Verdict{Winner: SideB}
		default:
			return Verdict{}
		}
	}

	if result.Scores == nil {
		return Verdict{}
	}

	switch {
	case result.Scores.SubmissionATotal > result.Scores.SubmissionBTotal:
		return Verdict{Winner: SideA}
	case result.Scores.SubmissionBTotal > result.Scores.SubmissionATotal:
		return Verdict{Winner: SideB}
	default:
		return Verdict{}
	}
}

// TierOf classifies a score: 4 and above is high, 1 to 3 is mid, the rest low.
func TierOf(score int) Tier {
	switch {
	case score >= 4:
		return TierHigh
	case score >= 1:
		return TierMid
	default:
		return TierLow
	}
}

// Passed reports whether an assessment counts as a pass.
func Passed(score int) bool {
	return score > 0
}

func anyPositive(assessments []FeatureAssessment) bool {
	for _, item := range assessments {
		if item.Score > 0 {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the absence of a side as null.
func (s Side) MarshalJSON() ([]byte, error) {
	if s == SideNone {
		return []byte("null"), nil
	}
	return []byte(`"` + string(s) + `"`), nil
}

// Tier classifies the assessment's score.
func (f FeatureAssessment) Tier() Tier {
	return TierOf(f.Score)
}

// Passed reports whether the assessment scored above zero.
func (f FeatureAssessment) Passed() bool {
	return Passed(f.Score)
}
