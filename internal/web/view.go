package web

import (
	"fmt"
	"strings"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
)

// Page is the data rendered by the console template.
type Page struct {
	AppName    string
	Prompt     string
	Accept     string
	Notice     string
	Loading    bool
	Log        []string
	Error      string
	Result     *ResultView
	ProgressWS string
}

// ResultView is a render-ready verdict.
type ResultView struct {
	Title         string
	FinalDecision string
	Outcome       string
	Totals        *evaluation.Scores
	Cards         []CardView
}

// CardView is one submission column.
type CardView struct {
	Title string
	Badge string
	Items []ItemView
}

// ItemView is one rubric row.
type ItemView struct {
	Glyph      string
	Feature    string
	Reason     string
	Score      string
	ScoreClass string
}

// NewResultView lays out a result using the interpreted verdict.
// Badges are only shown when there is a winner; the header says Tie otherwise.
func NewResultView(result evaluation.Result, verdict evaluation.Verdict) *ResultView {
	view := &ResultView{
		Title:         result.DecisionType.Title(),
		FinalDecision: result.FinalDecision,
		Outcome:       string(evaluation.BadgeTie),
		Cards: []CardView{
			newCard("Submission A", evaluation.SideA, result, verdict),
			newCard("Submission B", evaluation.SideB, result, verdict),
		},
	}
	if verdict.HasWinner() {
		view.Outcome = fmt.Sprintf("Winner: Submission %s", strings.ToUpper(string(verdict.Winner)))
	}
	if result.DecisionType == evaluation.DecisionNormal && result.Scores != nil {
		totals := *result.Scores
		view.Totals = &totals
	}
	return view
}

func newCard(title string, side evaluation.Side, result evaluation.Result, verdict evaluation.Verdict) CardView {
	card := CardView{Title: title}
	if verdict.HasWinner() {
		card.Badge = string(verdict.Badge(side))
	}

	for _, item := range result.Assessments(side) {
		glyph := "❌"
		if item.Passed() {
			glyph = "✅"
		}
		card.Items = append(card.Items, ItemView{
			Glyph:      glyph,
			Feature:    item.Feature,
			Reason:     item.Reason,
			Score:      fmt.Sprintf("%d/5", item.Score),
			ScoreClass: "score-" + string(item.Tier()),
		})
	}
	return card
}
