package answer

import (
	"fmt"

	"github.com/mng48301/searchai/internal/analyzer"
)

var instructions = map[analyzer.Intent]string{
	analyzer.IntentPrice: "List every product or offer mentioned in the content with its price, " +
		"one per line in the form \"Name: $price\". Then answer the question briefly.",
	analyzer.IntentTable: "Answer as a markdown table with a header row and one row per item. " +
		"Use only facts from the content.",
	analyzer.IntentVisualization: "Extract the numeric data relevant to the question, " +
		"one per line in the form \"Label: value\", without units other than a leading $ for money.",
	analyzer.IntentSummary: "Summarize the content in a few short paragraphs of plain text.",
	analyzer.IntentGeneral: "Answer the question using only the content below. " +
		"Say so if the content does not contain the answer.",
}

// Instruction builds the model instruction for a question of the given intent.
func Instruction(intent analyzer.Intent, question string) string {
	base, ok := instructions[intent]
	if !ok {
		base = instructions[analyzer.IntentGeneral]
	}
	return fmt.Sprintf("Question: %s\n\n%s", question, base)
}
