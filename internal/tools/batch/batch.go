// Package batch handles tool arguments that name one item or many, and
// reports per-item outcomes when a tool fans out over them.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome is what happened to one item of a batch.
type Outcome struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates the outcomes of a batch in input order.
type Report struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"successful"`
	Failed    int       `json:"failed"`
	Items     []Outcome `json:"results"`
}

// ParseStringOrArray accepts a string, a list of strings, or a string that
// holds a JSON list of strings. Empty values are rejected.
func ParseStringOrArray(param any, name string) ([]string, error) {
	switch v := param.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", name)
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		if list, ok := jsonList(v); ok {
			return ParseStringOrArray(list, name)
		}
		return []string{v}, nil
	case []string:
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		return ParseStringOrArray(list, name)
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			switch {
			case !ok:
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			case s == "":
				return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}
}

// jsonList decodes s when it looks like a JSON array. Folder names such as
// "[Gmail]/All Mail" start with a bracket too, so a failed decode is not an
// error.
func jsonList(s string) ([]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, false
	}
	var list []any
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, false
	}
	return list, true
}

// Run calls fn for each id in order. Once ctx is done the remaining ids are
// reported as failed with the context error instead of being attempted.
func Run[T any](ctx context.Context, ids []string, fn func(ctx context.Context, id string) (T, error)) Report {
	report := Report{Items: make([]Outcome, 0, len(ids))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			report.add(Failure(id, err))
			continue
		}
		res, err := fn(ctx, id)
		if err != nil {
			report.add(Failure(id, err))
			continue
		}
		report.add(Success(id, res))
	}
	return report
}

func (r *Report) add(o Outcome) {
	r.Total++
	if o.Status == StatusSuccess {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Items = append(r.Items, o)
}

// JSON renders the report indented for tool output.
func (r Report) JSON() string {
	if r.Items == nil {
		r.Items = []Outcome{}
	}
	data, _ := json.MarshalIndent(r, "", "  ")
	return string(data)
}

func Success(id string, result any) Outcome {
	return Outcome{ID: id, Status: StatusSuccess, Result: result}
}

func Failure(id string, err error) Outcome {
	return Outcome{ID: id, Status: StatusError, Error: err.Error()}
}
