package mailbox

import (
	"context"
	"strings"
)

// Message is an outgoing plain-text email.
type Message struct {
	To      []string
	Cc      []string
	Subject string
	Content string
}

// Validate checks that the message can be sent.
func (m Message) Validate() error {
	if len(nonBlank(m.To)) == 0 {
		return invalidArgument("at least one recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return invalidArgument("subject cannot be empty")
	}
	if strings.TrimSpace(m.Content) == "" {
		return invalidArgument("content cannot be empty")
	}
	return nil
}

// Recipients returns To followed by Cc with blanks removed.
func (m Message) Recipients() []string {
	return append(nonBlank(m.To), nonBlank(m.Cc)...)
}

// Sender delivers outgoing mail. Send must return promptly once ctx is done;
// an interrupted send may still have been delivered.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
