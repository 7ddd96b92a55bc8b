// Package mcp implements `chainsaw mcp`: an MCP stdio server exposing the
// query engine as tools (trace, chain, cut) so an agent can ask what
// importing a file costs without shelling out to the CLI.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chainsaw-tool/chainsaw/internal/graph"
	"github.com/chainsaw-tool/chainsaw/internal/query"
	"github.com/chainsaw-tool/chainsaw/internal/trace"
)

// NewServer creates an MCP server exposing chainsaw's trace/chain/cut tools.
func NewServer(log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"chainsaw",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(traceTool(), traceHandler(log))
	s.AddTool(chainTool(), chainHandler(log))
	s.AddTool(cutTool(), cutHandler(log))

	return s
}

func traceTool() mcp.Tool {
	return mcp.NewTool("trace",
		mcp.WithDescription("Compute what an entry file pulls in at module-load time: static and dynamic transitive byte weight, module counts, and the heaviest dependencies."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("entry",
			mcp.Required(),
			mcp.Description("Absolute or relative path to the entry source file"),
		),
		mcp.WithBoolean("include_dynamic",
			mcp.Description("Follow dynamic edges (import() expressions, Python imports nested in functions or conditionals) as well as static ones (default false)"),
		),
		mcp.WithNumber("top",
			mcp.Description("How many heavy dependencies to list (default 10)"),
		),
	)
}

func chainTool() mcp.Tool {
	return mcp.NewTool("chain",
		mcp.WithDescription("Find the shortest import chain(s) from an entry file to a named package, showing exactly which files pull it in."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("entry", mcp.Required(), mcp.Description("Absolute or relative path to the entry source file")),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name to trace a chain to")),
		mcp.WithBoolean("include_dynamic", mcp.Description("Follow dynamic edges too (default false)")),
	)
}

func cutTool() mcp.Tool {
	return mcp.NewTool("cut",
		mcp.WithDescription("Find the single internal module that lies on every shortest import chain to a named package, so removing it would break all of those chains."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("entry", mcp.Required(), mcp.Description("Absolute or relative path to the entry source file")),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name to find a cut point for")),
		mcp.WithBoolean("include_dynamic", mcp.Description("Follow dynamic edges too (default false)")),
	)
}

func traceHandler(log *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID := uuid.NewString()
		entry, err := req.RequireString("entry")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: entry"), nil
		}
		top := req.GetInt("top", 10)
		log := log.With("tool_call_id", callID, "tool", "trace")

		rep, err := trace.Run(ctx, log, trace.Options{
			Entry:          entry,
			IncludeDynamic: req.GetBool("include_dynamic", false),
			Top:            top,
			TopModules:     20,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("trace failed: %v", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n\n", rep.Entry)
		fmt.Fprintf(&b, "Static: %d bytes across %d modules\n", rep.StaticBytes, rep.StaticModules)
		fmt.Fprintf(&b, "Dynamic (extra, if included): %d bytes across %d modules\n\n", rep.DynamicBytes, rep.DynamicModules)
		if len(rep.Heavy) > 0 {
			b.WriteString("### Heaviest dependencies\n\n")
			for _, h := range rep.Heavy {
				fmt.Fprintf(&b, "- **%s** — %d bytes, %d files\n", h.Package, h.Bytes, h.Files)
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func chainHandler(log *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entry, err := req.RequireString("entry")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: entry"), nil
		}
		pkg, err := req.RequireString("package")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: package"), nil
		}
		includeDynamic := req.GetBool("include_dynamic", false)
		log := log.With("tool_call_id", uuid.NewString(), "tool", "chain")

		g, entryID, err := trace.BuildGraphForQuery(ctx, log, entry)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("building graph failed: %v", err)), nil
		}
		chains := query.ShortestChains(g, entryID, pkg, includeDynamic, 3)
		if len(chains) == 0 {
			if refs := query.UnresolvedReferencing(g, pkg); len(refs) > 0 {
				return mcp.NewToolResultText(unresolvedMessage(g, pkg, refs)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("%q is not reachable from %s", pkg, entry)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "## Shortest chain(s) to %s\n\n", pkg)
		for i, c := range chains {
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(c.Paths(g), " -> "))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func cutHandler(log *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entry, err := req.RequireString("entry")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: entry"), nil
		}
		pkg, err := req.RequireString("package")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: package"), nil
		}
		includeDynamic := req.GetBool("include_dynamic", false)
		log := log.With("tool_call_id", uuid.NewString(), "tool", "cut")

		g, entryID, err := trace.BuildGraphForQuery(ctx, log, entry)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("building graph failed: %v", err)), nil
		}
		cut := query.CutPoints(g, entryID, pkg, includeDynamic)
		if !cut.HasCut {
			if cut.ChainCount == 0 {
				if refs := query.UnresolvedReferencing(g, pkg); len(refs) > 0 {
					return mcp.NewToolResultText(unresolvedMessage(g, pkg, refs)), nil
				}
				return mcp.NewToolResultText(fmt.Sprintf("%q is not reachable from %s", pkg, entry)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("no single module cuts every known chain to %q (%d chains considered)", pkg, cut.ChainCount)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("cutting %s would remove all %d known import chains to %q", g.Module(cut.Cut).Path, cut.ChainCount, pkg)), nil
	}
}

// unresolvedMessage renders spec.md §7's unresolved-reference surfacing for
// a --chain/--cut target that never resolved to a file but was named by a
// specifier somewhere in the tree.
func unresolvedMessage(g *graph.Graph, pkg string, refs []graph.ModuleID) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q never resolved to a file, but is referenced (unresolved) from:\n", pkg)
	for _, id := range refs {
		fmt.Fprintf(&b, "- %s\n", g.Module(id).Path)
	}
	return b.String()
}
