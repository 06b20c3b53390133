package worker

import (
	"strconv"
	"strings"
)

// buildPrompt substitutes {topic} and {batch_size} into assignedPrompt and
// appends a terse formatting directive (spec.md §4.6 step 2).
func buildPrompt(assignedPrompt, topic string, batchSize int) string {
	replacer := strings.NewReplacer(
		"{topic}", topic,
		"{batch_size}", strconv.Itoa(batchSize),
	)
	prompt := replacer.Replace(assignedPrompt)
	return prompt + "\nOne entry per line."
}
