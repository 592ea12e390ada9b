package evaluation

import (
	"encoding/json"
	"strings"
)

// Form field names shared by the evaluation API and its clients.
const (
	FieldCorrectPrompt = "correct_prompt"
	FieldSubmissionA   = "submission_a_file"
	FieldSubmissionB   = "submission_b_file"
)

// AcceptedExtensions lists the file types the console advertises. The list is advisory.
var AcceptedExtensions = []string{".html", ".htm", ".js", ".css", ".py", ".java", ".txt"}

// DecisionType classifies how the verdict was reached.
type DecisionType string

const (
	DecisionNormal       DecisionType = "Normal"
	DecisionTrapDetected DecisionType = "Trap Detected"
)

// UnmarshalJSON maps unknown decision types to Normal.
func (d *DecisionType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(raw), string(DecisionTrapDetected)) {
		*d = DecisionTrapDetected
		return nil
	}
	*d = DecisionNormal
	return nil
}

// Title is the heading shown above a verdict.
func (d DecisionType) Title() string {
	if d == DecisionTrapDetected {
		return "Trap Detected"
	}
	return "Normal Comparison"
}

// FeatureAssessment is one rubric item's evaluation for one submission.
type FeatureAssessment struct {
	Feature string `json:"feature" validate:"required"`
	Score   int    `json:"score" validate:"min=0,max=5"`
	Reason  string `json:"reason"`
}

// Scores carries the per-submission totals of a Normal decision.
type Scores struct {
	SubmissionATotal float64 `json:"submission_a_total"`
	SubmissionBTotal float64 `json:"submission_b_total"`
}

// Analysis groups the assessments of both submissions.
type Analysis struct {
	SubmissionA []FeatureAssessment `json:"submission_a" validate:"dive"`
	SubmissionB []FeatureAssessment `json:"submission_b" validate:"dive"`
}

// Result is the structured verdict returned by the evaluation service.
type Result struct {
	DecisionType  DecisionType `json:"decision_type"`
	FinalDecision string       `json:"final_decision"`
	Scores        *Scores      `json:"scores,omitempty"`
	Analysis      Analysis     `json:"analysis"`
}

// Assessments returns the analysis for the given side.
func (r Result) Assessments(side Side) []FeatureAssessment {
	switch side {
	case SideA:
		return r.Analysis.SubmissionA
	case SideB:
		return r.Analysis.SubmissionB
	default:
		return nil
	}
}
