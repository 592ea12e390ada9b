package ai

import "strings"

const judgeSystemPrompt = "You are a strict code submission evaluator. You compare two submissions against a reference prompt and answer with a single JSON object only."

const judgeInstructions = `Perform a forensic, differential comparison of SUBMISSION A and SUBMISSION B against the CORRECT PROMPT.

Rules:
1. Break the correct prompt into its rubric features (components, behaviours, subject matter).
2. A submission is a trap when it adds features the prompt does not ask for, misses required features, or alters the subject of the prompt.
3. A trap can never be the winner. The submission that matches the correct prompt wins.
4. Score every rubric feature for each submission from 0 to 5 and give a one sentence reason. A feature that belongs to an altered subject scores 0.

Answer with JSON in exactly this shape:
{
  "decision_type": "Normal" | "Trap Detected",
  "final_decision": "<one or two sentences naming the winner and why>",
  "scores": {"submission_a_total": <number>, "submission_b_total": <number>},
  "analysis": {
    "submission_a": [{"feature": "<name>", "score": <0-5>, "reason": "<short reason>"}],
    "submission_b": [{"feature": "<name>", "score": <0-5>, "reason": "<short reason>"}]
  }
}
Use "Trap Detected" when one submission is a trap; give every feature of the trap submission a score of 0.
Include "scores" with the sum of each submission's feature scores.`

func buildJudgePrompt(input JudgeInput) string {
	builder := strings.Builder{}
	builder.WriteString(judgeInstructions)
	builder.WriteString("\n\n[CORRECT_PROMPT]\n")
	builder.WriteString(input.CorrectPrompt)
	builder.WriteString("\n[/CORRECT_PROMPT]\n\n[SUBMISSION_A_CODE")
	writeName(&builder, input.SubmissionAName)
	builder.WriteString("]\n")
	builder.WriteString(input.SubmissionA)
	builder.WriteString("\n[/SUBMISSION_A_CODE]\n\n[SUBMISSION_B_CODE")
	writeName(&builder, input.SubmissionBName)
	builder.WriteString("]\n")
	builder.WriteString(input.SubmissionB)
	builder.WriteString("\n[/SUBMISSION_B_CODE]\n")
	return builder.String()
}

func writeName(builder *strings.Builder, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	builder.WriteString(" file=")
	builder.WriteString(name)
}
