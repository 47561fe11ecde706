package rag

import "fmt"

// buildPrompt frames the query and retrieved context for the generation
// capability. Each context chunk is tagged with its source so the model can
// attribute claims.
func buildPrompt(query, context string) string {
	return fmt.Sprintf(`You are a helpful assistant answering questions about a collection of product documents. Answer the user's question based on the provided context.

Context from documents:
%s

User question: %s

Instructions:
- Answer using ONLY the information from the context above.
- If the context does not contain enough information to answer, say "I don't have enough information in the documents to answer this question."
- Be concise and accurate.
- When referencing specific products or features, mention the source document.

Answer:`, context, query)
}
