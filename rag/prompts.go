package rag

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragrelay/core"
)

// DefaultSystemPrompt instructs the model to stay within the supplied context.
const DefaultSystemPrompt = `You are a helpful assistant that answers questions using only the provided context.
If the context does not contain the answer, say explicitly that the answer is not in the available context.
Do not use outside knowledge.`

// NoContextAnswer is returned when retrieval finds nothing relevant enough.
const NoContextAnswer = "I couldn't find any relevant information in the knowledge base to answer this question."

// BuildContext renders results as numbered, labeled document blocks.
func BuildContext(results []core.ScoredResult) string {
	blocks := make([]string, len(results))
	for i := range results {
		blocks[i] = fmt.Sprintf("Document %d (%s):\n%s", i+1, results[i].SourceLabel(), results[i].Text)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildUserPrompt wraps the grounding context and the question.
func BuildUserPrompt(context, question string) string {
	return "Answer this question using ONLY the context below:\n\n" +
		"Context:\n" + context + "\n\n" +
		"Question: " + question + "\n\n" +
		"Answer:"
}

// AppendSources adds a deduplicated source list to answer.
func AppendSources(answer string, results []core.ScoredResult) string {
	if len(results) == 0 {
		return answer
	}

	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\nSources:")

	seen := make(map[string]bool, len(results))
	for i := range results {
		label := results[i].SourceLabel()
		if seen[label] {
			continue
		}
		seen[label] = true
		b.WriteString("\n- ")
		b.WriteString(label)
	}
	return b.String()
}
