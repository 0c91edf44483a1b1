package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailmcp/internal/collections"
	"github.com/teemow/mailmcp/internal/server"
)

func newTestServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	store := collections.NewService(collections.NewMemoryStore(), collections.Options{})
	sc := server.NewServerContext(context.Background(), nil, store)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestRegisterAllTools(t *testing.T) {
	tests := []struct {
		name      string
		readOnly  bool
		wantWrite bool
	}{
		{name: "read-only", readOnly: true, wantWrite: false},
		{name: "write operations enabled", readOnly: false, wantWrite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
			require.NoError(t, registerAllTools(s, newTestServerContext(t), tt.readOnly))

			tools := s.ListTools()
			for _, name := range []string{
				"mail-search", "mail-get-content", "mail-send", "mail-folders", "mail-count-daily",
				"mail-update", "mail-fetch", "mail-list", "mail-preview", "mail-combine", "mail-history", "mail-drop",
			} {
				assert.Contains(t, tools, name)
			}

			_, hasMove := tools["mail-move"]
			_, hasDelete := tools["mail-delete"]
			assert.Equal(t, tt.wantWrite, hasMove)
			assert.Equal(t, tt.wantWrite, hasDelete)
		})
	}
}

func TestRunServe_UnsupportedTransport(t *testing.T) {
	err := runServe(ServeConfig{Transport: "websocket"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport type: websocket")
}

func TestRunServe_UnsupportedLogFormat(t *testing.T) {
	err := runServe(ServeConfig{Transport: "stdio", LogFormat: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported log format "xml"`)
}

func TestRunServe_HTTPRequiresAuthToken(t *testing.T) {
	for _, transport := range []string{server.TransportSSE, server.TransportStreamableHTTP} {
		err := runServe(ServeConfig{Transport: transport})
		require.ErrorIs(t, err, server.ErrAuthTokenRequired, transport)
		assert.Contains(t, err.Error(), "MCP_AUTH_TOKEN")
	}
}

func TestServeCmdDefaults(t *testing.T) {
	cmd := newServeCmd()

	transport, err := cmd.Flags().GetString("transport")
	require.NoError(t, err)
	assert.Equal(t, "stdio", transport)

	httpAddr, err := cmd.Flags().GetString("http-addr")
	require.NoError(t, err)
	assert.Equal(t, server.DefaultHTTPAddr, httpAddr)

	assert.Equal(t, "127.0.0.1:8080", httpAddr)

	token, err := cmd.Flags().GetString("auth-token")
	require.NoError(t, err)
	assert.Empty(t, token)

	write, err := cmd.Flags().GetBool("enable-write-operations")
	require.NoError(t, err)
	assert.False(t, write)

	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	require.NoError(t, err)
	assert.Equal(t, server.DefaultMetricsAddr, metricsAddr)

	logFormat, err := cmd.Flags().GetString("log-format")
	require.NoError(t, err)
	assert.Equal(t, "text", logFormat)
}

func TestGetCategoryFromToolName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"mail-search", "Mailbox Tools"},
		{"mail-delete", "Mailbox Tools"},
		{"mail-fetch", "Collection Tools"},
		{"mail-drop", "Collection Tools"},
		{"other_tool", "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getCategoryFromToolName(tt.name))
		})
	}
}

func TestGenerateToolsMarkdown(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
	require.NoError(t, registerAllTools(s, newTestServerContext(t), false))

	tools := make([]mcp.Tool, 0)
	for _, st := range s.ListTools() {
		tools = append(tools, st.Tool)
	}

	md := generateToolsMarkdown(tools)
	assert.True(t, strings.HasPrefix(md, "# MCP Tools Reference"))
	assert.Contains(t, md, "## Collection Tools")
	assert.Contains(t, md, "## Mailbox Tools")
	assert.Contains(t, md, "### mail-search")
	assert.Contains(t, md, "- `collection_id` (required): ")
	assert.Less(t, strings.Index(md, "## Collection Tools"), strings.Index(md, "## Mailbox Tools"))
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "mailmcp version 1.2.3\n", out.String())
}

func TestGenerateDocsCmd_OutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tools.md")

	cmd := newGenerateDocsCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--output", out})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "### mail-move")
	assert.Contains(t, md, "### mail-delete")
	assert.Contains(t, md, "- `permanent` (optional): ")
	assert.Contains(t, stderr.String(), "Documentation written to: "+out)
}
