package collection_tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailmcp/internal/collections"
	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/server"
	"github.com/teemow/mailmcp/internal/tools/batch"
	"github.com/teemow/mailmcp/internal/tools/common"
)

const (
	defaultFetchLimit   = 100
	defaultPreviewRows  = 5
	collectionIDDesc    = "Collection ID, as returned by mail-search or mail-list"
	operationGrammarDoc = "Pipeline of stages separated by '|'. Stages: " +
		"filter <col> <op> <value> (ops: == != > < >= <= contains startswith endswith), " +
		"select <c1,c2>, drop <c1,c2>, sort <col> [asc|desc], group <col>, head <n>, " +
		"domain <col> [as <new>], day <col> [as <new>]. " +
		"Example: filter subject contains invoice | domain from as sender_domain | group sender_domain"
)

// RegisterCollectionTools registers the collection post-processing tools.
// They only touch the local collection store and are always available.
func RegisterCollectionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	updateTool := mcp.NewTool("mail-update",
		mcp.WithDescription("Transform a collection in place with a pipeline of operations. "+
			"Failed operations leave the collection unchanged and are recorded in its history."),
		mcp.WithString("collection_id",
			mcp.Required(),
			mcp.Description(collectionIDDesc),
		),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description(operationGrammarDoc),
		),
	)
	s.AddTool(updateTool, instrumented("mail-update", "update", sc, handleUpdate))

	fetchTool := mcp.NewTool("mail-fetch",
		mcp.WithDescription("Fetch the rows of a collection"),
		mcp.WithString("collection_id",
			mcp.Required(),
			mcp.Description(collectionIDDesc),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of rows to return; 0 returns all rows (default: 100)"),
		),
		mcp.WithString("format",
			mcp.Enum(collections.FormatRecords, collections.FormatDict, collections.FormatCSV, collections.FormatJSON),
			mcp.Description("Output format: records, dict, csv or json (default: records)"),
		),
	)
	s.AddTool(fetchTool, instrumented("mail-fetch", "fetch", sc, handleFetch))

	listTool := mcp.NewTool("mail-list",
		mcp.WithDescription("List all collections with their metadata"),
	)
	s.AddTool(listTool, instrumented("mail-list", "list", sc, handleList))

	previewTool := mcp.NewTool("mail-preview",
		mcp.WithDescription("Show metadata, column types and the first rows of a collection"),
		mcp.WithString("collection_id",
			mcp.Required(),
			mcp.Description(collectionIDDesc),
		),
		mcp.WithNumber("rows",
			mcp.Description("Number of rows to show (default: 5)"),
		),
	)
	s.AddTool(previewTool, instrumented("mail-preview", "preview", sc, handlePreview))

	combineTool := mcp.NewTool("mail-combine",
		mcp.WithDescription("Append the rows of the source collection to the target collection. "+
			"Both must have exactly the same columns."),
		mcp.WithString("target_collection_id",
			mcp.Required(),
			mcp.Description("Collection that receives the rows"),
		),
		mcp.WithString("source_collection_id",
			mcp.Required(),
			mcp.Description("Collection whose rows are appended; it is left unchanged"),
		),
	)
	s.AddTool(combineTool, instrumented("mail-combine", "combine", sc, handleCombine))

	historyTool := mcp.NewTool("mail-history",
		mcp.WithDescription("Show the operation history of a collection"),
		mcp.WithString("collection_id",
			mcp.Required(),
			mcp.Description(collectionIDDesc),
		),
	)
	s.AddTool(historyTool, instrumented("mail-history", "history", sc, handleHistory))

	dropTool := mcp.NewTool("mail-drop",
		mcp.WithDescription("Delete one or more collections"),
		mcp.WithString("collection_id",
			mcp.Required(),
			mcp.Description("Collection ID (string) or array of collection IDs"),
		),
	)
	s.AddTool(dropTool, instrumented("mail-drop", "drop", sc, handleDrop))

	return nil
}

type handlerFunc func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

func instrumented(name, operation string, sc *server.ServerContext, h handlerFunc) common.ToolHandler {
	return common.InstrumentedToolHandlerWithService(name, instrumentation.ServiceCollections, operation, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return h(ctx, request, sc)
		})
}

// collectionError maps service errors onto tool errors.
func collectionError(action, id string, err error) *mcp.CallToolResult {
	if collections.IsNotFound(err) {
		return mcp.NewToolResultError(fmt.Sprintf("Collection %s not found", id))
	}
	if errors.Is(err, collections.ErrInvalidOperation) || errors.Is(err, collections.ErrIncompatible) ||
		errors.Is(err, collections.ErrUnsupportedFormat) {
		return mcp.NewToolResultError(err.Error())
	}
	return common.FailureResult(action, err)
}

func handleUpdate(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, err := common.RequiredStringArg(args, "collection_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	operation, err := common.RequiredStringArg(args, "operation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	meta, err := sc.Collections().Update(ctx, id, operation)
	if err != nil {
		return collectionError("update collection", id, err), nil
	}
	return common.JSONResult(meta)
}

func handleFetch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, err := common.RequiredStringArg(args, "collection_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit, err := common.IntArg(args, "limit", defaultFetchLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := common.StringArg(args, "format", collections.FormatRecords)

	res, err := sc.Collections().Fetch(ctx, id, limit, format)
	if err != nil {
		return collectionError("fetch collection", id, err), nil
	}
	return common.JSONResult(res)
}

func handleList(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	list, err := sc.Collections().List(ctx)
	if err != nil {
		return common.FailureResult("list collections", err), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No collections. Run mail-search to create one."), nil
	}
	return common.JSONResult(list)
}

func handlePreview(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, err := common.RequiredStringArg(args, "collection_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows, err := common.IntArg(args, "rows", defaultPreviewRows)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rows < 0 {
		return mcp.NewToolResultError("rows must be >= 0"), nil
	}

	res, err := sc.Collections().Preview(ctx, id, rows)
	if err != nil {
		return collectionError("preview collection", id, err), nil
	}
	return common.JSONResult(res)
}

func handleCombine(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	target, err := common.RequiredStringArg(args, "target_collection_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := common.RequiredStringArg(args, "source_collection_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	meta, err := sc.Collections().Combine(ctx, target, source)
	if err != nil {
		if collections.IsNotFound(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return collectionError("combine collections", target, err), nil
	}
	return common.JSONResult(meta)
}

func handleHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, err := common.RequiredStringArg(args, "collection_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	history, err := sc.Collections().History(ctx, id)
	if err != nil {
		return collectionError("read history", id, err), nil
	}
	return common.JSONResult(history)
}

func handleDrop(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	ids, err := batch.ParseStringOrArray(args["collection_id"], "collection_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(ids) == 1 {
		if err := sc.Collections().Delete(ctx, ids[0]); err != nil {
			return collectionError("drop collection", ids[0], err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Collection %s dropped", ids[0])), nil
	}

	report := batch.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
		if err := sc.Collections().Delete(ctx, id); err != nil {
			return "", err
		}
		return "dropped", nil
	})
	return mcp.NewToolResultText(report.JSON()), nil
}
