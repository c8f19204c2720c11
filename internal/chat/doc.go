// Package chat orchestrates one retrieval-augmented conversation turn.
//
// A turn moves through a fixed sequence: embed the prompt, retrieve similar
// documents and build the recent-history window (in parallel, neither
// depends on the other), fit everything into the generation token budget,
// call the model, then persist the prompt/completion pair as one atomic
// append. Each stage failure aborts the turn with a classified error; the
// only permitted divergence is an append whose cache write succeeded but
// whose store write failed, which is surfaced, not masked.
//
// The budget allocator is the heart of the package: retrieved documents and
// conversation history each absorb a cut proportional to their share of the
// combined pool, and the user prompt is never shortened under any input.
package chat
