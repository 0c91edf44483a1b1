package mail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/mailmcp/internal/mailbox"
	"github.com/teemow/mailmcp/internal/server"
	"github.com/teemow/mailmcp/internal/tools/batch"
	"github.com/teemow/mailmcp/internal/tools/common"
)

func handleFolders(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	folders, err := sc.Mailbox().ListFolders(ctx)
	if err != nil {
		return common.FailureResult("list folders", err), nil
	}
	return common.JSONResult(folders)
}

func handleCountDaily(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := common.RequiredStringArg(args, "start_date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, err := common.RequiredStringArg(args, "end_date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	counts, err := sc.Mailbox().CountDaily(ctx, start, end)
	if err != nil {
		return common.FailureResult("count emails", err), nil
	}
	return common.JSONResult(counts)
}

func handleMove(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	ids, err := batch.ParseStringOrArray(args["email_ids"], "email_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	destination, err := common.RequiredStringArg(args, "destination_folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source := common.StringArg(args, "source_folder", mailbox.FolderInbox)

	if err := sc.Mailbox().Move(ctx, ids, source, destination); err != nil {
		return common.FailureResult("move emails", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Successfully moved %d email(s) from %s to %s",
		len(ids), source, destination)), nil
}

func handleDelete(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	ids, err := batch.ParseStringOrArray(args["email_ids"], "email_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	folder := common.StringArg(args, "folder", mailbox.FolderInbox)
	permanent, err := common.BoolArg(args, "permanent", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Mailbox().Delete(ctx, ids, folder, permanent); err != nil {
		return common.FailureResult("delete emails", err), nil
	}
	if permanent {
		return mcp.NewToolResultText(fmt.Sprintf("Successfully deleted %d email(s) permanently from %s",
			len(ids), folder)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Successfully moved %d email(s) from %s to trash",
		len(ids), folder)), nil
}
