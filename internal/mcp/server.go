package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"flowkit/internal/orchestrator"
	"flowkit/pkg/models"
)

const (
	// ToolRun is the tool that executes a flow.
	ToolRun = "flowkit"
	// ToolListFlows is the tool that lists available flows.
	ToolListFlows = "list_flows"
)

// FlowService is the part of the run service exposed over MCP.
type FlowService interface {
	Execute(ctx context.Context, in orchestrator.RunInput) (*models.OrchestrationResult, error)
	ListFlows(ctx context.Context) []models.FlowSummary
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Server struct {
	mcpServer *server.MCPServer
	flows     FlowService
	logger    Logger
}

func NewServer(flows FlowService, version string, logger Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"FlowKit",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		flows:  flows,
		logger: logger,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP over stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolRun,
			mcp.WithDescription("Run a multi-step LLM workflow defined in the flow document and return every step's output and validation result"),
			mcp.WithString("flow_name", mcp.Required(), mcp.Description("Name of the flow to run")),
			mcp.WithString("target_model", mcp.Required(), mcp.Description("Model identifier, e.g. gemini-2.5-pro, claude-3-opus, gpt-4 or dummy. Empty selects the configured default model")),
			mcp.WithString("context_file_path", mcp.Description("Optional file, relative to the context directory, whose contents are given to the flow as context")),
			mcp.WithObject("variables",
				mcp.Description("Optional template variables substituted as {{name}} in step prompts"),
				mcp.AdditionalProperties(map[string]any{"type": "string"}),
			),
		),
		s.handleRun,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolListFlows,
			mcp.WithDescription("List the flows available to the flowkit tool"),
		),
		s.handleListFlows,
	)
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logError("flowkit tool panicked", "panic", r)
			result, err = errorResult(fmt.Sprintf("%v", r)), nil
		}
	}()

	input, details := parseRunInput(request.Params.Arguments)
	if len(details) > 0 {
		return jsonResult(map[string]any{"error": "invalid input", "details": details}, true), nil
	}

	res, runErr := s.flows.Execute(ctx, input)
	if runErr != nil {
		return errorResult(runErr.Error()), nil
	}
	return jsonResult(map[string]any{"result": res}, false), nil
}

func (s *Server) handleListFlows(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"flows": s.flows.ListFlows(ctx)}, false), nil
}

// parseRunInput checks the tool arguments against the flowkit input schema
// and returns a problem description per offending field.
func parseRunInput(raw any) (orchestrator.RunInput, map[string]string) {
	var in orchestrator.RunInput
	details := map[string]string{}

	args, ok := raw.(map[string]interface{})
	if !ok {
		details["arguments"] = "must be an object"
		return in, details
	}

	requiredString := func(name string) string {
		v, present := args[name]
		if !present || v == nil {
			details[name] = "is required"
			return ""
		}
		str, ok := v.(string)
		if !ok {
			details[name] = "must be a string"
		}
		return str
	}
	in.FlowName = requiredString("flow_name")
	in.TargetModel = requiredString("target_model")

	if v, present := args["context_file_path"]; present && v != nil {
		str, ok := v.(string)
		if !ok {
			details["context_file_path"] = "must be a string"
		}
		in.ContextFilePath = str
	}

	if v, present := args["variables"]; present && v != nil {
		vars, ok := v.(map[string]interface{})
		if !ok {
			details["variables"] = "must be an object of strings"
		} else {
			in.Variables = make(map[string]string, len(vars))
			for k, val := range vars {
				str, ok := val.(string)
				if !ok {
					details["variables."+k] = "must be a string"
					continue
				}
				in.Variables[k] = str
			}
		}
	}
	return in, details
}

func errorResult(message string) *mcp.CallToolResult {
	return jsonResult(map[string]any{"error": message}, true)
}

func jsonResult(payload any, isError bool) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	if isError {
		return mcp.NewToolResultError(string(jsonBytes))
	}
	return mcp.NewToolResultText(string(jsonBytes))
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// MountHTTPHandlers serves the MCP server under /mcp: streamable HTTP on
// /mcp itself, and the SSE transport on /mcp/sse and /mcp/message.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))
	streamable := server.NewStreamableHTTPServer(mcpServer, server.WithEndpointPath("/mcp"))

	mux.Handle("/mcp", streamable)
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
