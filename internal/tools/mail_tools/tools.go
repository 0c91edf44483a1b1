package mail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/mailbox"
	"github.com/teemow/mailmcp/internal/server"
	"github.com/teemow/mailmcp/internal/tools/common"
)

// RegisterMailTools registers the mailbox tools with the MCP server.
// mail-move and mail-delete are only registered when readOnly is false.
func RegisterMailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	searchTool := mcp.NewTool("mail-search",
		mcp.WithDescription("Search emails in a folder and store the matches as a new collection. "+
			"Returns the collection metadata; use mail-fetch or mail-preview to read the rows."),
		mcp.WithString("start_date",
			mcp.Description("Earliest date to include (YYYY-MM-DD)"),
		),
		mcp.WithString("end_date",
			mcp.Description("Latest date to include (YYYY-MM-DD)"),
		),
		mcp.WithString("subject",
			mcp.Description("Only emails whose subject contains this text"),
		),
		mcp.WithString("sender",
			mcp.Description("Only emails whose sender contains this text"),
		),
		mcp.WithString("body",
			mcp.Description("Only emails whose body contains this text"),
		),
		mcp.WithString("folder",
			mcp.Description("Folder to search: 'inbox', 'sent' or a server folder name (default: inbox)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of emails to return, 1-1000 (default: 100)"),
		),
		mcp.WithNumber("start_from",
			mcp.Description("Number of matches to skip, for paging (default: 0)"),
		),
		mcp.WithString("direction",
			mcp.Enum(string(mailbox.DirectionNewest), string(mailbox.DirectionOldest)),
			mcp.Description("Order applied before paging: 'newest' or 'oldest' (default: newest)"),
		),
		mcp.WithString("collection_name",
			mcp.Description("Name of the collection to create (default: generated)"),
		),
	)
	s.AddTool(searchTool, common.InstrumentedToolHandlerWithService("mail-search", instrumentation.ServiceIMAP, instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearch(ctx, request, sc)
		}))

	getContentTool := mcp.NewTool("mail-get-content",
		mcp.WithDescription("Get the full content of one or more emails"),
		mcp.WithString("email_id",
			mcp.Required(),
			mcp.Description("Email ID (string) or array of email IDs, as returned by mail-search"),
		),
		mcp.WithString("folder",
			mcp.Description("Folder containing the email (default: inbox)"),
		),
	)
	s.AddTool(getContentTool, common.InstrumentedToolHandlerWithService("mail-get-content", instrumentation.ServiceIMAP, instrumentation.OperationGetContent, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetContent(ctx, request, sc)
		}))

	sendTool := mcp.NewTool("mail-send",
		mcp.WithDescription("Send a plain-text email"),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient address (string), comma-separated addresses, or array of addresses"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Email body as plain text"),
		),
		mcp.WithString("cc",
			mcp.Description("CC address (string), comma-separated addresses, or array of addresses"),
		),
	)
	s.AddTool(sendTool, common.InstrumentedToolHandlerWithService("mail-send", instrumentation.ServiceSMTP, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSend(ctx, request, sc)
		}))

	foldersTool := mcp.NewTool("mail-folders",
		mcp.WithDescription("List the folders of the mailbox"),
	)
	s.AddTool(foldersTool, common.InstrumentedToolHandlerWithService("mail-folders", instrumentation.ServiceIMAP, instrumentation.OperationListFolders, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFolders(ctx, request, sc)
		}))

	countDailyTool := mcp.NewTool("mail-count-daily",
		mcp.WithDescription("Count inbox emails per day between two dates (inclusive). "+
			"A day whose count timed out is reported as -1."),
		mcp.WithString("start_date",
			mcp.Required(),
			mcp.Description("First day (YYYY-MM-DD)"),
		),
		mcp.WithString("end_date",
			mcp.Required(),
			mcp.Description("Last day (YYYY-MM-DD)"),
		),
	)
	s.AddTool(countDailyTool, common.InstrumentedToolHandlerWithService("mail-count-daily", instrumentation.ServiceIMAP, instrumentation.OperationCountDaily, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCountDaily(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}
	return registerWriteTools(s, sc)
}

func registerWriteTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	moveTool := mcp.NewTool("mail-move",
		mcp.WithDescription("Move emails to another folder"),
		mcp.WithString("email_ids",
			mcp.Required(),
			mcp.Description("Email ID (string) or array of email IDs to move"),
		),
		mcp.WithString("destination_folder",
			mcp.Required(),
			mcp.Description("Folder to move the emails to"),
		),
		mcp.WithString("source_folder",
			mcp.Description("Folder containing the emails (default: inbox)"),
		),
	)
	s.AddTool(moveTool, common.InstrumentedToolHandlerWithService("mail-move", instrumentation.ServiceIMAP, instrumentation.OperationMove, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMove(ctx, request, sc)
		}))

	deleteTool := mcp.NewTool("mail-delete",
		mcp.WithDescription("Delete emails. By default they are moved to the trash folder; "+
			"with permanent=true they are expunged."),
		mcp.WithString("email_ids",
			mcp.Required(),
			mcp.Description("Email ID (string) or array of email IDs to delete"),
		),
		mcp.WithString("folder",
			mcp.Description("Folder containing the emails (default: inbox)"),
		),
		mcp.WithBoolean("permanent",
			mcp.Description("Expunge instead of moving to trash (default: false)"),
		),
	)
	s.AddTool(deleteTool, common.InstrumentedToolHandlerWithService("mail-delete", instrumentation.ServiceIMAP, instrumentation.OperationDelete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDelete(ctx, request, sc)
		}))

	return nil
}
