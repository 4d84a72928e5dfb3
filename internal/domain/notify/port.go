package notify

import "context"

// Message is an outbound notification request
type Message struct {
	Recipient string
	Template  string
	Data      map[string]any
}

// Sink port: best-effort delivery. Callers log failures and never propagate
// them as failures of the triggering operation.
type Sink interface {
	Send(ctx context.Context, m Message) error
}
