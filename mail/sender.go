// Package mail delivers magic-link verification emails.
package mail

import "context"

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages. Delivery failures surface as errors so callers
// can tell the user the send did not happen.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
