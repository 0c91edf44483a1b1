package mail_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/mailmcp/internal/mailbox"
	"github.com/teemow/mailmcp/internal/server"
	"github.com/teemow/mailmcp/internal/tools/batch"
	"github.com/teemow/mailmcp/internal/tools/common"
)

func handleSend(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	to, err := batch.ParseStringOrArray(args["to"], "to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var cc []string
	if raw, ok := args["cc"]; ok && raw != nil && raw != "" {
		cc, err = batch.ParseStringOrArray(raw, "cc")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	msg := mailbox.Message{
		To:      splitAddresses(to),
		Cc:      splitAddresses(cc),
		Subject: stringValue(args, "subject"),
		Content: stringValue(args, "content"),
	}
	if err := msg.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Mailbox().Send(ctx, msg); err != nil {
		return common.FailureResult("send email", err), nil
	}

	result := fmt.Sprintf("Email sent successfully!\nTo: %s\nSubject: %s",
		strings.Join(msg.To, ", "), msg.Subject)
	if len(msg.Cc) > 0 {
		result += fmt.Sprintf("\nCC: %s", strings.Join(msg.Cc, ", "))
	}
	return mcp.NewToolResultText(result), nil
}

// splitAddresses expands comma-separated address lists. Entries that do
// not parse are kept verbatim so the sender reports them.
func splitAddresses(values []string) []string {
	var out []string
	for _, v := range values {
		list, err := mail.ParseAddressList(v)
		if err != nil {
			out = append(out, strings.TrimSpace(v))
			continue
		}
		for _, addr := range list {
			if addr.Name == "" {
				out = append(out, addr.Address)
				continue
			}
			out = append(out, addr.String())
		}
	}
	return out
}

// stringValue returns the argument untrimmed; body text keeps its
// leading whitespace.
func stringValue(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}
