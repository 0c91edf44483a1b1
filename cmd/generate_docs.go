package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/mailmcp/internal/collections"
	"github.com/teemow/mailmcp/internal/server"
)

const (
	categoryCollections = "Collection Tools"
	categoryMailbox     = "Mailbox Tools"
	categoryOther       = "Other"
)

// categoryOrder is also the order of sections in the reference.
var categoryOrder = []string{categoryCollections, categoryMailbox, categoryOther}

// collectionToolNames lists the tools that only work on stored collections.
var collectionToolNames = map[string]bool{
	"mail-update":  true,
	"mail-fetch":   true,
	"mail-list":    true,
	"mail-preview": true,
	"mail-combine": true,
	"mail-history": true,
	"mail-drop":    true,
}

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate a markdown reference of every MCP tool, including the write
tools that serve only registers with --enable-write-operations. The
reference is built from the registered tool definitions, so no mailbox
credentials are needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				return writeToolsReference(cmd.OutOrStdout())
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			if err := writeToolsReference(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func writeToolsReference(w io.Writer) error {
	store := collections.NewService(collections.NewMemoryStore(), collections.Options{})
	sc := server.NewServerContext(context.Background(), nil, store)
	defer func() { _ = sc.Shutdown() }()

	s := mcpserver.NewMCPServer("mailmcp", version, mcpserver.WithToolCapabilities(true))
	if err := registerAllTools(s, sc, false); err != nil {
		return err
	}

	tools := make([]mcp.Tool, 0)
	for _, st := range s.ListTools() {
		tools = append(tools, st.Tool)
	}
	_, err := io.WriteString(w, generateToolsMarkdown(tools))
	return err
}

type docArgument struct {
	Name        string
	Required    bool
	Description string
}

type docTool struct {
	Name        string
	Description string
	Arguments   []docArgument
}

type docSection struct {
	Title  string
	Anchor string
	Tools  []docTool
}

var referenceTemplate = template.Must(template.New("reference").Parse(`# MCP Tools Reference

This document lists every tool mailmcp serves over MCP.

**Note:** This documentation is automatically generated from the tool definitions.

## Table of Contents

{{range .}}- [{{.Title}}](#{{.Anchor}})
{{end}}
## Email IDs and Collections

- **Email IDs** are IMAP sequence numbers. They are only valid until the folder changes, so search again after moving or deleting emails.
- **Collections** are created by ` + "`mail-search`" + ` and hold the columns ` + "`id`, `from`, `date` and `subject`" + `. The collection tools transform and export them without contacting the mail server.
- **Write operations** (` + "`mail-move`, `mail-delete`" + `) are only available when the server runs with ` + "`--enable-write-operations`" + `.
{{range .}}
## {{.Title}}
{{range .Tools}}
### {{.Name}}
{{if .Description}}
{{.Description}}
{{end}}{{if .Arguments}}
**Arguments:**
{{range .Arguments}}- ` + "`{{.Name}}`" + ` ({{if .Required}}required{{else}}optional{{end}}): {{.Description}}
{{end}}{{end}}{{end}}{{end}}`))

func generateToolsMarkdown(tools []mcp.Tool) string {
	grouped := make(map[string][]docTool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		grouped[category] = append(grouped[category], newDocTool(tool))
	}

	var sections []docSection
	for _, title := range categoryOrder {
		docs, ok := grouped[title]
		if !ok {
			continue
		}
		slices.SortFunc(docs, func(a, b docTool) int { return strings.Compare(a.Name, b.Name) })
		sections = append(sections, docSection{
			Title:  title,
			Anchor: strings.ToLower(strings.ReplaceAll(title, " ", "-")),
			Tools:  docs,
		})
	}

	var sb strings.Builder
	// The template is static and only reads plain fields.
	_ = referenceTemplate.Execute(&sb, sections)
	return sb.String()
}

func newDocTool(tool mcp.Tool) docTool {
	doc := docTool{Name: tool.Name, Description: tool.Description}

	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		prop, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}
		desc, _ := prop["description"].(string)
		if desc == "" {
			kind, _ := prop["type"].(string)
			if kind == "" {
				kind = "any"
			}
			desc = kind + " parameter"
		}
		doc.Arguments = append(doc.Arguments, docArgument{
			Name:        name,
			Required:    slices.Contains(tool.InputSchema.Required, name),
			Description: desc,
		})
	}
	return doc
}

func getCategoryFromToolName(name string) string {
	switch {
	case collectionToolNames[name]:
		return categoryCollections
	case strings.HasPrefix(name, "mail-"):
		return categoryMailbox
	default:
		return categoryOther
	}
}
