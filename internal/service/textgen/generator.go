package textgen

import (
	"context"

	"companion/internal/models"
)

// SystemDirective is sent with every conversation.
const SystemDirective = "Response must be in markdown format so the client can format it in render, " +
	"the length of the response must be less than 200 words, " +
	"the response should not be a list of items"

// Generator produces a reply for message given the prior turns.
// ok is false when the model answered without any text.
type Generator interface {
	Reply(ctx context.Context, message string, history []models.HistoryEntry) (reply string, ok bool, err error)
}
