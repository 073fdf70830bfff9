package port

import "context"

// StatusPublisher announces terminal run transitions to other services.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

// DLQPublisher parks trigger messages that can never be processed.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}

// TriggerHandler receives raw upload-completed messages from a broker.
type TriggerHandler func(ctx context.Context, body []byte) error
