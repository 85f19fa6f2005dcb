package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/rollgate/internal/report"
)

// handleReport processes ops_report tool calls.
func (s *Server) handleReport(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input ReportInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	raw := input.Window
	if raw == "" {
		raw = report.DefaultWindow
	}

	window, parseErr := report.ParseWindow(raw)
	if parseErr != nil {
		return errorResult(parseErr)
	}

	rep, buildErr := s.builder.Build(window, time.Now().UTC())
	if buildErr != nil {
		return errorResult(fmt.Errorf("build report: %w", buildErr))
	}

	return jsonResult(rep)
}
