package smtp

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/teemow/mailmcp/internal/mailbox"
)

// Compose renders msg as a plain-text RFC 5322 message from the given
// address. Cc recipients appear in the Cc header; Bcc is not supported.
func Compose(from string, msg mailbox.Message, now time.Time) ([]byte, error) {
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	to, err := parseAddresses(msg.To)
	if err != nil {
		return nil, err
	}
	cc, err := parseAddresses(msg.Cc)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{sender})
	h.SetAddressList("To", to)
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, msg.Content); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func parseAddresses(values []string) ([]*mail.Address, error) {
	var out []*mail.Address
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(v)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", v, err)
		}
		out = append(out, addrs...)
	}
	return out, nil
}

// envelopeRecipients returns the bare addresses for RCPT TO.
func envelopeRecipients(msg mailbox.Message) ([]string, error) {
	addrs, err := parseAddresses(msg.Recipients())
	if err != nil {
		return nil, err
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Address
	}
	return out, nil
}
