package imapconn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/responses"

	"github.com/teemow/mailmcp/internal/mailbox"
)

// searchArgs splits a compiled SEARCH program into command arguments.
// Keywords and dates pass through verbatim, quoted strings become Go
// strings so go-imap picks quoting or a literal (needed for UTF-8), and
// parenthesized groups become nested lists.
func searchArgs(query string) ([]interface{}, error) {
	args, rest, err := parseList(strings.TrimSpace(query), false)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("unbalanced parenthesis in search %q", query)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty search program")
	}
	return args, nil
}

func parseList(s string, nested bool) ([]interface{}, string, error) {
	var out []interface{}
	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			if nested {
				return nil, "", fmt.Errorf("missing closing parenthesis")
			}
			return out, "", nil
		}

		switch s[0] {
		case ')':
			if !nested {
				return nil, s, nil
			}
			return out, s[1:], nil
		case '(':
			sub, rest, err := parseList(s[1:], true)
			if err != nil {
				return nil, "", err
			}
			out = append(out, sub)
			s = rest
		case '"':
			str, rest, err := unquote(s)
			if err != nil {
				return nil, "", err
			}
			out = append(out, str)
			s = rest
		default:
			end := strings.IndexAny(s, " ()")
			if end < 0 {
				end = len(s)
			}
			out = append(out, imap.RawString(s[:end]))
			s = s[end:]
		}
	}
}

// unquote reads a quoted string at the start of s.
func unquote(s string) (string, string, error) {
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				sb.WriteByte(s[i])
			}
		case '"':
			return sb.String(), s[i+1:], nil
		default:
			sb.WriteByte(s[i])
		}
	}
	return "", "", fmt.Errorf("unterminated quoted string")
}

// esearchHandler captures the PARTIAL result of a RETURN search and
// expands its sequence set into ascending ids.
type esearchHandler struct {
	seen bool
	ids  []string
	err  error
}

func (h *esearchHandler) Handle(resp imap.Resp) error {
	name, fields, ok := imap.ParseNamedResp(resp)
	if !ok || !strings.EqualFold(name, "ESEARCH") {
		return responses.ErrUnhandled
	}
	h.seen = true
	h.ids, h.err = partialIDs(fields)
	return nil
}

// partialIDs finds "PARTIAL (range set)" among the ESEARCH return data.
func partialIDs(fields []interface{}) ([]string, error) {
	for i := 0; i+1 < len(fields); i++ {
		key, ok := fields[i].(string)
		if !ok || !strings.EqualFold(key, "PARTIAL") {
			continue
		}
		result, ok := fields[i+1].([]interface{})
		if !ok || len(result) != 2 {
			return nil, fmt.Errorf("malformed PARTIAL result %v", fields[i+1])
		}
		if result[1] == nil {
			return []string{}, nil
		}
		raw, ok := result[1].(string)
		if !ok {
			return nil, fmt.Errorf("malformed PARTIAL set %v", result[1])
		}
		return expandSet(raw)
	}
	return nil, errors.New("no PARTIAL result in ESEARCH response")
}

func expandSet(raw string) ([]string, error) {
	set, err := imap.ParseSeqSet(raw)
	if err != nil {
		return nil, err
	}
	if set.Dynamic() {
		return nil, fmt.Errorf("unexpected * in PARTIAL set %q", raw)
	}
	ids := []string{}
	for _, seq := range set.Set {
		if seq.Stop-seq.Start >= mailbox.MaxResultsLimit || len(ids) >= mailbox.MaxResultsLimit {
			return nil, fmt.Errorf("PARTIAL set %q exceeds page limit", raw)
		}
		for n := seq.Start; n <= seq.Stop; n++ {
			ids = append(ids, strconv.FormatUint(uint64(n), 10))
		}
	}
	return ids, nil
}
