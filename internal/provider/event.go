package provider

import (
	"fmt"

	"go.uber.org/zap"
)

// Event is a preprocessed repository-hosting webhook event.
type Event struct {
	JSON     []byte
	Provider string

	// Hook fields, if a value is not available it is an empty string.
	DeliveryID string
	EventType  string
	Action     string
	RepoOwner  string
	Repository string
	// PRNumber is 0 if it's not available
	PRNumber int
	// Label is the name of the applied label for "labeled" events.
	Label string
	// CommentBody is the comment text for issue_comment events.
	CommentBody string
}

func (e *Event) String() string {
	return fmt.Sprintf("%s (deliveryID: %s)", e.EventType, e.DeliveryID)
}

func (e *Event) LogFields() []zap.Field {
	fields := make([]zap.Field, 0, 6) // cap == max. size of fields we append

	if e.DeliveryID != "" {
		fields = append(fields, zap.String("github.delivery_id", e.DeliveryID))
	}

	if e.EventType != "" {
		fields = append(fields, zap.String("github.event_type", e.EventType))
	}

	if e.RepoOwner != "" {
		fields = append(fields, zap.String("github.repository_owner", e.RepoOwner))
	}

	if e.Repository != "" {
		fields = append(fields, zap.String("github.repository", e.Repository))
	}

	if e.PRNumber != 0 {
		fields = append(fields, zap.Int("github.pull_request_nr", e.PRNumber))
	}

	if e.Label != "" {
		fields = append(fields, zap.String("github.label", e.Label))
	}

	return fields
}
