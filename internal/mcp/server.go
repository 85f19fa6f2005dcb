// Package mcp implements a Model Context Protocol server exposing read-only
// rollout status and report tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/report"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/observability"
	"github.com/Sumatoshi-tech/rollgate/pkg/version"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "rollgate"

	// toolCount is the expected number of registered tools.
	toolCount = 2
)

// Config wires the stores the MCP tools read from. Tools never write:
// state loads are snapshot reads against the atomically-replaced files.
type Config struct {
	// Registry is the category taxonomy.
	Registry *category.Registry

	// States is the rollout state store.
	States *state.Store

	// Metrics is the quality metrics log.
	Metrics *metrics.Store

	// Ladder is the publish limit ladder for fresh category defaults.
	Ladder rollout.Ladder

	// BudgetCeiling is the monthly spend ceiling in KRW minor units.
	BudgetCeiling int64
}

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Instruments is an optional metrics recorder. Nil disables per-tool metrics.
	Instruments *observability.ControllerMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with rollgate tool registrations.
type Server struct {
	inner       *mcpsdk.Server
	mu          sync.RWMutex
	tools       []string
	instruments *observability.ControllerMetrics
	tracer      trace.Tracer

	registry *category.Registry
	states   *state.Store
	ladder   rollout.Ladder
	ceiling  int64
	builder  *report.Builder
}

// NewServer creates a new MCP server with all rollgate tools registered.
func NewServer(cfg Config, deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		opts,
	)

	srv := &Server{
		inner:       inner,
		tools:       make([]string, 0, toolCount),
		instruments: deps.Instruments,
		tracer:      deps.Tracer,
		registry:    cfg.Registry,
		states:      cfg.States,
		ladder:      cfg.Ladder,
		ceiling:     cfg.BudgetCeiling,
		builder: report.NewBuilder(report.Config{
			Registry:      cfg.Registry,
			States:        cfg.States,
			Metrics:       cfg.Metrics,
			Ladder:        cfg.Ladder,
			BudgetCeiling: cfg.BudgetCeiling,
		}),
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	err := s.inner.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// registerTools adds all rollgate MCP tools to the server.
func (s *Server) registerTools() {
	s.registerStatusTool()
	s.registerReportTool()
}

func (s *Server) registerStatusTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameStatus,
		Description: statusToolDescription,
	}, withMetrics(s.instruments, ToolNameStatus, withTracing(s.tracer, ToolNameStatus, s.handleStatus)))

	s.trackTool(ToolNameStatus)
}

func (s *Server) registerReportTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameReport,
		Description: reportToolDescription,
	}, withMetrics(s.instruments, ToolNameReport, withTracing(s.tracer, ToolNameReport, s.handleReport)))

	s.trackTool(ToolNameReport)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		// Include trace_id in response when span is sampled.
		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record per-call instruments.
func withMetrics[Input any](
	instruments *observability.ControllerMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if instruments == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		instruments.RecordToolCall(ctx, toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	statusToolDescription = "Report the current rollout state of every content category: " +
		"publish limit, enabled flag, promotion and failure streaks, and the " +
		"monthly budget position. Read-only."

	reportToolDescription = "Build a windowed operational report over the quality metrics log: " +
		"per-category averages for duplicate, policy flag, and indexed rates, " +
		"plus the latest row and disabled categories. Read-only."
)
