package generation

import (
	"fmt"
	"strings"

	"github.com/quokkadev/opsrag/internal/retrieval"
)

// RefusalMessage is returned verbatim when retrieval finds nothing relevant.
const RefusalMessage = "I can’t find relevant info in the currently selected document."

const systemPrompt = `You are a senior DevOps engineer acting as a documentation assistant.
Answer strictly from the provided context. If the context does not contain the
answer, say so instead of guessing.

Structure your answer as:
Commands: the exact commands to run, if any.
Explanation: what the commands do and why.
Evidence: cite the context you used as [Source: <document> | Page <page>].`

// buildUserPrompt renders the retrieved chunks and the question into the
// model's user message.
func buildUserPrompt(question string, chunks []retrieval.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("Context:\n\n")
	for _, c := range chunks {
		fmt.Fprintf(&sb, "--- Document: %s | Page %d ---\n%s\n\n",
			c.Document.Title, c.Chunk.Page, c.Chunk.Content)
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}
