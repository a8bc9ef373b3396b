// Package timeout defines centralized timeout constants for AI operations.
package timeout

import "time"

const (
	// CompletionAttemptTimeout bounds one completion attempt when the profile sets none.
	CompletionAttemptTimeout = 30 * time.Second

	// EmbeddingTimeout bounds indexing one document: removing stale chunks,
	// embedding every chunk and writing them.
	EmbeddingTimeout = 2 * time.Minute

	// RetrievalTimeout bounds the context lookup of a chat turn.
	RetrievalTimeout = 10 * time.Second

	// ToolExecutionTimeout is the timeout for a routed structured action.
	ToolExecutionTimeout = 10 * time.Second

	// WebhookBatchTimeout bounds the background processing of one LINE webhook batch.
	WebhookBatchTimeout = 2 * time.Minute

	// DeliveryTimeout bounds one outbound reply or push call.
	DeliveryTimeout = 15 * time.Second

	// ExtractionTimeout bounds text extraction of one document.
	ExtractionTimeout = 2 * time.Minute
)
