// Package knowledge stores and retrieves documents by semantic similarity.
//
// Documents live in PostgreSQL with pgvector embeddings. Add embeds content
// with the configured model before writing; Search takes a precomputed query
// embedding so callers that already embedded the text for other purposes do
// not pay for a second model call. Indexer feeds local files into the store,
// honoring .gitignore and the embedding model's input size limit.
package knowledge
