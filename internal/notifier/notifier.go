package notifier

import "context"

// Notifier delivers an alert message to a chat. Delivery is best
// effort: the engine logs a failure and moves on, it never retries.
type Notifier interface {
	Send(ctx context.Context, chatID int64, message string) error
}
