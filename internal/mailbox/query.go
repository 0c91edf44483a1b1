package mailbox

import (
	"strings"
	"time"
	"unicode/utf8"
)

// imapDateLayout is the date-text form of RFC 3501 (e.g. 15-Dec-2024).
const imapDateLayout = "02-Jan-2006"

// queryAll matches every message in the selected folder.
const queryAll = "ALL"

// Compile translates criteria into an IMAP SEARCH program.
//
// Dates: a single day becomes ON, a range becomes SINCE/BEFORE with the
// upper bound moved one day forward because BEFORE is exclusive. Field
// filters are ANDed with the date clause; several clauses are parenthesized.
func Compile(c SearchCriteria) string {
	var clauses []string

	if date := dateClause(c); date != "" {
		clauses = append(clauses, date)
	}
	if c.subject != "" {
		clauses = append(clauses, "SUBJECT "+quote(c.subject))
	}
	if c.sender != "" {
		clauses = append(clauses, "FROM "+quote(c.sender))
	}
	if c.body != "" {
		clauses = append(clauses, "BODY "+quote(c.body))
	}

	var query string
	switch len(clauses) {
	case 0:
		return queryAll
	case 1:
		query = clauses[0]
	default:
		query = "(" + strings.Join(clauses, " ") + ")"
	}

	if needsUTF8(c.subject, c.sender, c.body) {
		query = "CHARSET UTF-8 " + query
	}
	return query
}

func dateClause(c SearchCriteria) string {
	switch {
	case c.hasStart && c.hasEnd:
		if sameDay(c.startDate, c.endDate) {
			return "ON " + formatDate(c.startDate)
		}
		return "SINCE " + formatDate(c.startDate) + " BEFORE " + formatDate(nextDay(c.endDate))
	case c.hasStart:
		return "SINCE " + formatDate(c.startDate)
	case c.hasEnd:
		return "BEFORE " + formatDate(nextDay(c.endDate))
	default:
		return ""
	}
}

// dayQuery matches messages whose internal date falls on day.
func dayQuery(day time.Time) string {
	return "ON " + formatDate(day)
}

func formatDate(t time.Time) string {
	return t.Format(imapDateLayout)
}

func nextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// quote renders s as an IMAP quoted string. CR and LF cannot appear in a
// quoted string and are replaced by spaces.
func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\r', '\n':
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func needsUTF8(values ...string) bool {
	for _, v := range values {
		for i := 0; i < len(v); i++ {
			if v[i] >= utf8.RuneSelf {
				return true
			}
		}
	}
	return false
}
