// Package tools exposes generation, predicate evaluation and run history as
// MCP tools over stdio, so an assistant can drive btmgen directly.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/solatis/btmgen/internal/core/api"
	"github.com/solatis/btmgen/internal/core/config"
	"github.com/solatis/btmgen/internal/generate"
	"github.com/solatis/btmgen/internal/safeeval"
	"github.com/solatis/btmgen/internal/types"
)

// GenerateInput selects sources and the most common generate options.
type GenerateInput struct {
	SrcDirs       []string `json:"src_dirs" jsonschema:"Source roots to scan (Kotlin, and Java when include_java is set)"`
	OutputDir     string   `json:"output_dir" jsonschema:"Directory the .btm shard files are written to"`
	Shards        int      `json:"shards,omitempty" jsonschema:"Number of output shards (default: number of CPUs)"`
	IncludeJava   bool     `json:"include_java,omitempty" jsonschema:"Also scan .java files"`
	SafeMode      bool     `json:"safe_mode,omitempty" jsonschema:"Route opaque conditions through keyed predicates instead of embedding them"`
	SkipEntryExit bool     `json:"skip_entry_exit,omitempty" jsonschema:"Do not emit method entry and exit rules"`
	PkgPrefixes   []string `json:"pkg_prefixes,omitempty" jsonschema:"Only include packages starting with one of these prefixes"`
	MinBranches   int      `json:"min_branches,omitempty" jsonschema:"Drop methods with fewer branch rules than this"`
}

// EvalInput names a predicate manifest and the bindings to evaluate it with.
type EvalInput struct {
	Path     string   `json:"path" jsonschema:"Path to a predicates.yaml written by a safe-mode run"`
	Bindings []string `json:"bindings,omitempty" jsonschema:"Bindings of the form name=value, e.g. value=7 or user.status=\"OK\""`
}

// RunsInput limits the run listing.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to list (default 20)"`
}

// EmptyInput is used by tools without arguments.
type EmptyInput struct{}

type handlers struct {
	version string
	store   api.RunStore
	logger  *slog.Logger
}

// NewServer builds the MCP server. store may be nil; list_runs then reports
// that no database is configured.
func NewServer(version string, store api.RunStore, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{version: version, store: store, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    types.GeneratorName,
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate",
		Description: "Scan Java/Kotlin sources and write Byteman rule shards that trace branches, when/switch selectors and method entry/exit. Returns run statistics and the files written.",
	}, h.generate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "eval_predicates",
		Description: "Evaluate every predicate of a safe-mode predicates.yaml against variable bindings and report which rules would fire.",
	}, h.evalPredicates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recorded generation runs, newest first. Needs a database.",
	}, h.listRuns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "status",
		Description: "Check btmgen MCP server status and version.",
	}, h.status)

	return server
}

// Run serves MCP on stdio until the client disconnects or ctx ends.
func Run(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

func (h *handlers) generate(ctx context.Context, req *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, any, error) {
	values := map[string]any{
		"src_dirs":     in.SrcDirs,
		"output_dir":   in.OutputDir,
		"include_java": in.IncludeJava,
		"safe_mode":    in.SafeMode,
		"entry_exit":   !in.SkipEntryExit,
	}
	if in.Shards != 0 {
		values["shards"] = in.Shards
	}
	if len(in.PkgPrefixes) > 0 {
		values["pkg_prefixes"] = in.PkgPrefixes
	}
	if in.MinBranches != 0 {
		values["min_branches_per_method"] = in.MinBranches
	}
	cfg, err := config.GenerateFromMap(values)
	if err != nil {
		return errorResult("Invalid options: " + err.Error()), nil, nil
	}

	g := &generate.Generator{Config: cfg, Logger: h.logger}
	if h.store != nil {
		g.Recorder = h.store
	}
	res, err := g.Run(ctx)
	if err != nil {
		return errorResult("Generation failed: " + err.Error()), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", res.RunID)
	fmt.Fprintf(&b, "Files scanned: %d (skipped %d)\n", res.Scan.FilesScanned, res.Scan.FilesSkipped)
	fmt.Fprintf(&b, "Events: %d\n", res.Scan.Events)
	fmt.Fprintf(&b, "Rules: %d (dropped %d)\n", res.Rules, res.Dropped)
	for _, f := range res.Files {
		fmt.Fprintf(&b, "  %s (%d bytes)\n", f.Path, f.Bytes)
	}
	if res.Manifest != "" {
		fmt.Fprintf(&b, "Predicates: %d in %s\n", res.Predicates, res.Manifest)
	}
	return textResult(b.String()), nil, nil
}

func (h *handlers) evalPredicates(ctx context.Context, req *mcp.CallToolRequest, in EvalInput) (*mcp.CallToolResult, any, error) {
	m, err := safeeval.LoadManifest(in.Path)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	bindings, err := safeeval.ParseBindings(in.Bindings)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	reg := safeeval.NewRegistry()
	if _, err := m.Register(reg, bindings); err != nil {
		return errorResult(err.Error()), nil, nil
	}

	if len(m.Predicates) == 0 {
		return textResult("No predicates in manifest."), nil, nil
	}
	var b strings.Builder
	for _, e := range m.Predicates {
		fmt.Fprintf(&b, "%s %s.%s:%d %q => %t\n", e.RuleID, e.Class, e.Method, e.Line, e.Condition, reg.IfMatch(e.RuleID))
	}
	return textResult(b.String()), nil, nil
}

func (h *handlers) listRuns(ctx context.Context, req *mcp.CallToolRequest, in RunsInput) (*mcp.CallToolResult, any, error) {
	if h.store == nil {
		return errorResult(types.ErrDatabaseRequired.Error() + " (start with --db-url)"), nil, nil
	}
	runs, err := h.store.ListRuns(ctx, in.Limit)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if len(runs) == 0 {
		return textResult("No runs recorded."), nil, nil
	}
	var b strings.Builder
	for _, r := range runs {
		fmt.Fprintf(&b, "%s %s %s rules=%d files=%d src=%s\n",
			r.ID, r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"), r.Status, r.Rules, r.FilesScanned, strings.Join(r.SrcDirs, ","))
	}
	return textResult(b.String()), nil, nil
}

func (h *handlers) status(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, any, error) {
	history := "disabled"
	if h.store != nil {
		history = "enabled"
	}
	return textResult(fmt.Sprintf("btmgen %s ready (run history %s)", h.version, history)), nil, nil
}
