package email

import (
	"context"
	"fmt"
)

// Message is a plain-text transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Welcome builds the message sent to a member on first sign-in.
func Welcome(to, name, directoryURL string) Message {
	return Message{
		To:      to,
		Subject: "Welcome to the member directory",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour directory profile has been created.\n\nAdd a nickname, your year, interests and a picture here:\n\n  %s/edit-profile\n",
			name, directoryURL,
		),
	}
}
