package mail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/mailmcp/internal/collections"
	"github.com/teemow/mailmcp/internal/mailbox"
	"github.com/teemow/mailmcp/internal/server"
	"github.com/teemow/mailmcp/internal/tools/batch"
	"github.com/teemow/mailmcp/internal/tools/common"
)

// noMatches is returned as a tool error when a search finds nothing, so no
// empty collection is created.
const noMatches = "No emails found matching the criteria."

// summaryColumns are the columns of a collection created by mail-search.
var summaryColumns = []string{"id", "from", "date", "subject"}

func searchCriteria(args map[string]interface{}) (mailbox.SearchCriteria, error) {
	maxResults, err := common.IntArg(args, "max_results", mailbox.DefaultMaxResults)
	if err != nil {
		return mailbox.SearchCriteria{}, err
	}
	startFrom, err := common.IntArg(args, "start_from", 0)
	if err != nil {
		return mailbox.SearchCriteria{}, err
	}
	return mailbox.NewSearchCriteria(common.StringArg(args, "folder", mailbox.FolderInbox),
		mailbox.WithStartDate(common.StringArg(args, "start_date", "")),
		mailbox.WithEndDate(common.StringArg(args, "end_date", "")),
		mailbox.WithSubject(common.StringArg(args, "subject", "")),
		mailbox.WithSender(common.StringArg(args, "sender", "")),
		mailbox.WithBody(common.StringArg(args, "body", "")),
		mailbox.WithMaxResults(maxResults),
		mailbox.WithStartFrom(startFrom),
		mailbox.WithDirection(mailbox.Direction(common.StringArg(args, "direction", string(mailbox.DirectionNewest)))),
	)
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	criteria, err := searchCriteria(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summaries, err := sc.Mailbox().Search(ctx, criteria)
	if err != nil {
		return common.FailureResult("search emails", err), nil
	}
	if len(summaries) == 0 {
		return mcp.NewToolResultError(noMatches), nil
	}

	table, err := summaryTable(summaries)
	if err != nil {
		return common.FailureResult("build collection", err), nil
	}
	meta, err := sc.Collections().Create(ctx, common.StringArg(args, "collection_name", ""), table)
	if err != nil {
		return common.FailureResult("create collection", err), nil
	}
	return common.JSONResult(meta)
}

func summaryTable(summaries []mailbox.Summary) (*collections.Table, error) {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{s.ID, s.From, s.Date, s.Subject})
	}
	return collections.NewTable(summaryColumns, rows)
}

func handleGetContent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	ids, err := batch.ParseStringOrArray(args["email_id"], "email_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	folder := common.StringArg(args, "folder", mailbox.FolderInbox)

	if len(ids) == 1 {
		content, err := sc.Mailbox().GetContent(ctx, ids[0], folder)
		if err != nil {
			return common.FailureResult(fmt.Sprintf("get email %s", ids[0]), err), nil
		}
		return common.JSONResult(content)
	}

	report := batch.Run(ctx, ids, func(ctx context.Context, id string) (*mailbox.Content, error) {
		return sc.Mailbox().GetContent(ctx, id, folder)
	})
	return mcp.NewToolResultText(report.JSON()), nil
}
