package imapconn

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchArgs(t *testing.T) {
	tests := []struct {
		query string
		want  []interface{}
	}{
		{"ALL", []interface{}{imap.RawString("ALL")}},
		{
			"SINCE 01-Jan-2024 BEFORE 01-Feb-2024",
			[]interface{}{
				imap.RawString("SINCE"), imap.RawString("01-Jan-2024"),
				imap.RawString("BEFORE"), imap.RawString("01-Feb-2024"),
			},
		},
		{
			`(ON 15-Jan-2024 SUBJECT "weekly report")`,
			[]interface{}{[]interface{}{
				imap.RawString("ON"), imap.RawString("15-Jan-2024"),
				imap.RawString("SUBJECT"), "weekly report",
			}},
		},
		{
			`CHARSET UTF-8 (SUBJECT "Grüße" FROM "say \"hi\"")`,
			[]interface{}{
				imap.RawString("CHARSET"), imap.RawString("UTF-8"),
				[]interface{}{imap.RawString("SUBJECT"), "Grüße", imap.RawString("FROM"), `say "hi"`},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := searchArgs(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchArgs_Errors(t *testing.T) {
	for _, q := range []string{"", "(ALL", "ALL)", `SUBJECT "open`} {
		_, err := searchArgs(q)
		assert.Error(t, err, q)
	}
}

func esearch(fields ...interface{}) *imap.DataResp {
	return &imap.DataResp{Fields: append([]interface{}{"ESEARCH"}, fields...)}
}

func TestEsearchHandler(t *testing.T) {
	tests := []struct {
		name string
		resp *imap.DataResp
		want []string
	}{
		{"range", esearch([]interface{}{"TAG", "A5"}, "PARTIAL", []interface{}{"1:5", "101:105"}),
			[]string{"101", "102", "103", "104", "105"}},
		{"mixed set", esearch([]interface{}{"TAG", "A1"}, "PARTIAL", []interface{}{"26:50", "12,3,7:9"}),
			[]string{"3", "7", "8", "9", "12"}},
		{"uid marker", esearch([]interface{}{"TAG", "A2"}, "UID", "PARTIAL", []interface{}{"-1:-3", "200:198"}),
			[]string{"198", "199", "200"}},
		{"nil window", esearch([]interface{}{"TAG", "A3"}, "PARTIAL", []interface{}{"51:100", nil}),
			[]string{}},
		{"lower case", esearch([]interface{}{"tag", "A4"}, "partial", []interface{}{"1:2", "4,5"}),
			[]string{"4", "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &esearchHandler{}
			require.NoError(t, h.Handle(tt.resp))
			require.True(t, h.seen)
			require.NoError(t, h.err)
			assert.Equal(t, tt.want, h.ids)
		})
	}
}

func TestEsearchHandler_Malformed(t *testing.T) {
	for name, resp := range map[string]*imap.DataResp{
		"no partial": esearch([]interface{}{"TAG", "A1"}, "COUNT", "5"),
		"zero":       esearch("PARTIAL", []interface{}{"1:5", "0"}),
		"not a set":  esearch("PARTIAL", []interface{}{"1:5", "abc"}),
		"star":       esearch("PARTIAL", []interface{}{"1:5", "7:*"}),
		"too large":  esearch("PARTIAL", []interface{}{"1:5", "1:99999"}),
		"short list": esearch("PARTIAL", []interface{}{"1:5"}),
		"not a list": esearch("PARTIAL", "1:5"),
	} {
		t.Run(name, func(t *testing.T) {
			h := &esearchHandler{}
			require.NoError(t, h.Handle(resp))
			assert.True(t, h.seen)
			assert.Error(t, h.err)
		})
	}
}

func TestEsearchHandler_Unhandled(t *testing.T) {
	h := &esearchHandler{}
	err := h.Handle(&imap.DataResp{Fields: []interface{}{"SEARCH", "1", "2"}})
	assert.Error(t, err)
	assert.False(t, h.seen)
}
