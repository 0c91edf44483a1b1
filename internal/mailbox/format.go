package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

const (
	placeholderUnknown   = "Unknown"
	placeholderNoSubject = "No Subject"
)

// Summary is the listing projection of a message.
type Summary struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
}

// Content is the reading projection of a message.
type Content struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// readEntity parses raw as a MIME entity. Unknown charsets and transfer
// encodings still yield a usable entity; only structural failures error.
func readEntity(raw []byte) (*message.Entity, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty message")
	}
	return e, nil
}

// headerText decodes a header value, falling back to the raw value when
// decoding fails and to placeholder when the header is absent.
func headerText(h message.Header, key, placeholder string) string {
	raw := h.Get(key)
	if raw == "" {
		return placeholder
	}
	text, err := h.Text(key)
	if err != nil || text == "" {
		return raw
	}
	return text
}

func formatSummary(msg RawMessage) (Summary, error) {
	e, err := readEntity(msg.Body)
	if err != nil {
		return Summary{}, wrap(ErrSearch, "parse summary", "", []string{msg.ID}, err)
	}
	return Summary{
		ID:      msg.ID,
		From:    headerText(e.Header, "From", placeholderUnknown),
		Date:    headerText(e.Header, "Date", placeholderUnknown),
		Subject: headerText(e.Header, "Subject", placeholderNoSubject),
	}, nil
}

func formatContent(msg RawMessage) (*Content, error) {
	e, err := readEntity(msg.Body)
	if err != nil {
		return nil, wrap(ErrContent, "parse content", "", []string{msg.ID}, err)
	}
	body, err := extractBody(e)
	if err != nil {
		return nil, wrap(ErrContent, "decode content", "", []string{msg.ID}, err)
	}
	return &Content{
		ID:      msg.ID,
		From:    headerText(e.Header, "From", placeholderUnknown),
		To:      headerText(e.Header, "To", placeholderUnknown),
		Date:    headerText(e.Header, "Date", placeholderUnknown),
		Subject: headerText(e.Header, "Subject", placeholderNoSubject),
		Content: body,
	}, nil
}

// extractBody returns the first text/plain part, else the first text/html
// part. A single-part message is decoded whatever its type.
func extractBody(e *message.Entity) (string, error) {
	if e.MultipartReader() == nil {
		return readPart(e)
	}

	var html *string
	plain, err := walkParts(e, &html)
	if err != nil {
		return "", err
	}
	if plain != nil {
		return *plain, nil
	}
	if html != nil {
		return *html, nil
	}
	return "", nil
}

// walkParts scans parts depth-first in document order and stops at the first
// text/plain part. The first text/html part seen is kept in html.
func walkParts(e *message.Entity, html **string) (*string, error) {
	mr := e.MultipartReader()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return nil, fmt.Errorf("read part: %w", err)
		}
		if part == nil {
			return nil, nil
		}

		if part.MultipartReader() != nil {
			plain, err := walkParts(part, html)
			if err != nil || plain != nil {
				return plain, err
			}
			continue
		}
		if isAttachment(part.Header) {
			continue
		}

		mediaType, _, _ := part.Header.ContentType()
		switch strings.ToLower(mediaType) {
		case "text/plain":
			text, err := readPart(part)
			if err != nil {
				return nil, err
			}
			return &text, nil
		case "text/html":
			if *html == nil {
				text, err := readPart(part)
				if err != nil {
					return nil, err
				}
				*html = &text
			}
		}
	}
}

func isAttachment(h message.Header) bool {
	disp, _, err := h.ContentDisposition()
	return err == nil && strings.EqualFold(disp, "attachment")
}

func readPart(e *message.Entity) (string, error) {
	b, err := io.ReadAll(e.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}
