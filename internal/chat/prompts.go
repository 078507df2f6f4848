package chat

import (
	"fmt"
	"strings"

	"github.com/ychsieh/ragchat/internal/knowledge"
)

// contextualizeSystemPrompt rewrites a follow-up question into a
// standalone one so retrieval works without the chat history.
const contextualizeSystemPrompt = `Given a chat history and the latest user question which might reference context in the chat history, formulate a standalone question which can be understood without the chat history. Do NOT answer the question, just reformulate it if needed and otherwise return it as is.`

// qaSystemPrompt grounds the answer in the retrieved context.
const qaSystemPrompt = `You are a helpful AI assistant. Use the following context to answer the user's question. If you don't know the answer, say so honestly.

Context: %s`

// renderContext joins retrieved chunks into the context block of the QA
// prompt, best match first.
func renderContext(results []knowledge.Result) string {
	if len(results) == 0 {
		return "(no relevant documents found)"
	}
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, res.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

func answerSystemPrompt(results []knowledge.Result) string {
	return fmt.Sprintf(qaSystemPrompt, renderContext(results))
}
