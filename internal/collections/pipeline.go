package collections

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/teemow/mailmcp/internal/logging"
)

// stage is one parsed pipeline step.
type stage struct {
	text  string
	apply func(*Table) (*Table, error)
}

// Pipeline is a parsed sequence of stages.
type Pipeline struct {
	stages []stage
}

// ParsePipeline parses stages separated by "|". Values containing spaces
// or "|" can be quoted with single or double quotes.
func ParsePipeline(src string) (*Pipeline, error) {
	groups, err := splitStages(src)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: empty pipeline", ErrInvalidOperation)
	}

	p := &Pipeline{}
	for _, tokens := range groups {
		s, err := parseStage(tokens)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, s)
	}
	return p, nil
}

// Apply runs every stage against a copy of t.
func (p *Pipeline) Apply(t *Table) (*Table, error) {
	out := t.Clone()
	for _, s := range p.stages {
		next, err := s.apply(out)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOperation, s.text, err)
		}
		out = next
	}
	return out, nil
}

func parseStage(tokens []string) (stage, error) {
	name := strings.ToLower(tokens[0])
	args := tokens[1:]
	s := stage{text: strings.Join(tokens, " ")}

	var err error
	switch name {
	case "filter":
		s.apply, err = parseFilter(args)
	case "select":
		s.apply, err = parseSelect(args, false)
	case "drop":
		s.apply, err = parseSelect(args, true)
	case "sort":
		s.apply, err = parseSort(args)
	case "group":
		s.apply, err = parseGroup(args)
	case "head":
		s.apply, err = parseHead(args)
	case "domain":
		s.apply, err = parseDerive(args, "domain", logging.ExtractDomain)
	case "day":
		s.apply, err = parseDerive(args, "day", toDay)
	default:
		return s, fmt.Errorf("%w: unknown stage %q (supported: filter, select, drop, sort, group, head, domain, day)",
			ErrInvalidOperation, tokens[0])
	}
	if err != nil {
		return s, fmt.Errorf("%w: %s: %v", ErrInvalidOperation, name, err)
	}
	return s, nil
}

var filterOps = map[string]func(cell, value string) bool{
	"==":         func(c, v string) bool { return compareCells(c, v) == 0 },
	"!=":         func(c, v string) bool { return compareCells(c, v) != 0 },
	">":          func(c, v string) bool { return compareCells(c, v) > 0 },
	"<":          func(c, v string) bool { return compareCells(c, v) < 0 },
	">=":         func(c, v string) bool { return compareCells(c, v) >= 0 },
	"<=":         func(c, v string) bool { return compareCells(c, v) <= 0 },
	"contains":   func(c, v string) bool { return strings.Contains(strings.ToLower(c), strings.ToLower(v)) },
	"startswith": func(c, v string) bool { return strings.HasPrefix(strings.ToLower(c), strings.ToLower(v)) },
	"endswith":   func(c, v string) bool { return strings.HasSuffix(strings.ToLower(c), strings.ToLower(v)) },
}

// filter <column> <op> <value>
func parseFilter(args []string) (func(*Table) (*Table, error), error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("usage: filter <column> <op> <value>")
	}
	col, op, value := args[0], strings.ToLower(args[1]), strings.Join(args[2:], " ")
	match, ok := filterOps[op]
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", args[1])
	}
	return func(t *Table) (*Table, error) {
		i, err := t.column(col)
		if err != nil {
			return nil, err
		}
		out := &Table{Columns: t.Columns}
		for _, r := range t.Rows {
			if match(r[i], value) {
				out.Rows = append(out.Rows, r)
			}
		}
		return out, nil
	}, nil
}

// select <c1,c2,...> and drop <c1,c2,...>
func parseSelect(args []string, drop bool) (func(*Table) (*Table, error), error) {
	names := columnList(args)
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	return func(t *Table) (*Table, error) {
		keep := names
		if drop {
			excluded := make(map[string]bool, len(names))
			for _, n := range names {
				if _, err := t.column(n); err != nil {
					return nil, err
				}
				excluded[n] = true
			}
			keep = nil
			for _, c := range t.Columns {
				if !excluded[c] {
					keep = append(keep, c)
				}
			}
		}
		return project(t, keep)
	}, nil
}

func project(t *Table, names []string) (*Table, error) {
	idx := make([]int, len(names))
	for j, n := range names {
		i, err := t.column(n)
		if err != nil {
			return nil, err
		}
		idx[j] = i
	}
	out := &Table{Columns: append([]string(nil), names...), Rows: make([][]string, len(t.Rows))}
	for r, row := range t.Rows {
		cells := make([]string, len(idx))
		for j, i := range idx {
			cells[j] = row[i]
		}
		out.Rows[r] = cells
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// sort <column> [asc|desc]
func parseSort(args []string) (func(*Table) (*Table, error), error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("usage: sort <column> [asc|desc]")
	}
	desc := false
	if len(args) == 2 {
		switch strings.ToLower(args[1]) {
		case "asc":
		case "desc":
			desc = true
		default:
			return nil, fmt.Errorf("unknown direction %q", args[1])
		}
	}
	col := args[0]
	return func(t *Table) (*Table, error) {
		i, err := t.column(col)
		if err != nil {
			return nil, err
		}
		rows := append([][]string(nil), t.Rows...)
		sort.SliceStable(rows, func(a, b int) bool {
			c := compareCells(rows[a][i], rows[b][i])
			if desc {
				return c > 0
			}
			return c < 0
		})
		return &Table{Columns: t.Columns, Rows: rows}, nil
	}, nil
}

// group <column> counts rows per value, most frequent first.
func parseGroup(args []string) (func(*Table) (*Table, error), error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: group <column>")
	}
	col := args[0]
	return func(t *Table) (*Table, error) {
		i, err := t.column(col)
		if err != nil {
			return nil, err
		}
		countCol := "count"
		if col == countCol {
			countCol = "count_"
		}

		counts := map[string]int{}
		var order []string
		for _, r := range t.Rows {
			if _, ok := counts[r[i]]; !ok {
				order = append(order, r[i])
			}
			counts[r[i]]++
		}
		sort.SliceStable(order, func(a, b int) bool {
			return counts[order[a]] > counts[order[b]]
		})

		out := &Table{Columns: []string{col, countCol}}
		for _, v := range order {
			out.Rows = append(out.Rows, []string{v, strconv.Itoa(counts[v])})
		}
		return out, nil
	}, nil
}

// head <n>
func parseHead(args []string) (func(*Table) (*Table, error), error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: head <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid row count %q", args[0])
	}
	return func(t *Table) (*Table, error) {
		if n < len(t.Rows) {
			return &Table{Columns: t.Columns, Rows: t.Rows[:n]}, nil
		}
		return t, nil
	}, nil
}

// parseDerive handles "<stage> <column> [as <new column>]". Without "as"
// the column is rewritten in place.
func parseDerive(args []string, name string, fn func(string) string) (func(*Table) (*Table, error), error) {
	var col, target string
	switch {
	case len(args) == 1:
		col, target = args[0], args[0]
	case len(args) == 3 && strings.EqualFold(args[1], "as"):
		col, target = args[0], args[2]
	default:
		return nil, fmt.Errorf("usage: %s <column> [as <new column>]", name)
	}
	return func(t *Table) (*Table, error) {
		i, err := t.column(col)
		if err != nil {
			return nil, err
		}
		out := &Table{Columns: append([]string(nil), t.Columns...), Rows: cloneRows(t.Rows)}
		j := out.Index(target)
		if j < 0 {
			out.Columns = append(out.Columns, target)
			j = len(out.Columns) - 1
			for r := range out.Rows {
				out.Rows[r] = append(out.Rows[r], "")
			}
		}
		for r := range out.Rows {
			out.Rows[r][j] = fn(t.Rows[r][i])
		}
		return out, nil
	}, nil
}

// toDay renders a parseable date as YYYY-MM-DD in its own offset.
func toDay(v string) string {
	t, ok := parseTime(strings.TrimSpace(v))
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

// compareCells orders numerically when both cells are numbers, by instant
// when both are dates and lexically otherwise.
func compareCells(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	ta, okA := parseTime(a)
	tb, okB := parseTime(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

func columnList(args []string) []string {
	var out []string
	for _, part := range strings.Split(strings.Join(args, ","), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitStages tokenizes src and groups tokens by "|".
func splitStages(src string) ([][]string, error) {
	var (
		groups  [][]string
		current []string
		sb      strings.Builder
		inToken bool
	)
	flush := func() {
		if inToken {
			current = append(current, sb.String())
			sb.Reset()
			inToken = false
		}
	}
	endStage := func() error {
		flush()
		if len(current) == 0 {
			return fmt.Errorf("%w: empty stage in %q", ErrInvalidOperation, src)
		}
		groups = append(groups, current)
		current = nil
		return nil
	}

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case ch == '"' || ch == '\'':
			end := strings.IndexByte(src[i+1:], ch)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote in %q", ErrInvalidOperation, src)
			}
			sb.WriteString(src[i+1 : i+1+end])
			inToken = true
			i += end + 1
		case ch == '|':
			if err := endStage(); err != nil {
				return nil, err
			}
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			sb.WriteByte(ch)
			inToken = true
		}
	}
	flush()
	if len(current) > 0 {
		groups = append(groups, current)
	} else if len(groups) > 0 {
		return nil, fmt.Errorf("%w: empty stage in %q", ErrInvalidOperation, src)
	}
	return groups, nil
}
