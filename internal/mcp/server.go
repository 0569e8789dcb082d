package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/doc-autofill/internal/config"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/pipeline"
)

// Pipeline is the orchestrator surface exposed as tools.
type Pipeline interface {
	Extract(ctx context.Context, doc *document.Document) (*extraction.Result, error)
	Fill(ctx context.Context, formURL string, data map[string]string) (*pipeline.Summary, error)
	ExtractAndFill(ctx context.Context, doc *document.Document, formURL string) (*extraction.Result, *pipeline.Summary, error)
	CloseSession(ctx context.Context) error
	Cancel(ctx context.Context) error
	Reset(ctx context.Context) error
	Status() pipeline.Status
}

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	pipeline  Pipeline
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, p Pipeline) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		pipeline:  p,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	extractTool := mcp.NewTool(
		"extract_document",
		mcp.WithDescription("Extract personal-data fields (name, date of birth, ID numbers, address) from an identity document PDF"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	)
	s.mcpServer.AddTool(extractTool, s.handleExtractDocument)

	fillTool := mcp.NewTool(
		"fill_form",
		mcp.WithDescription("Open a web form in a visible browser and pre-fill it. The window stays open for the user to review and submit."),
		mcp.WithString("form_url",
			mcp.Required(),
			mcp.Description("URL of the form to fill (https:// is assumed when no scheme is given)"),
		),
		mcp.WithObject("data",
			mcp.Description("Reviewed key/value fields to fill. Defaults to the fields of the last extraction."),
		),
	)
	s.mcpServer.AddTool(fillTool, s.handleFillForm)

	extractAndFillTool := mcp.NewTool(
		"extract_and_fill",
		mcp.WithDescription("Extract fields from a PDF and fill a web form with them in one step"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithString("form_url",
			mcp.Required(),
			mcp.Description("URL of the form to fill"),
		),
	)
	s.mcpServer.AddTool(extractAndFillTool, s.handleExtractAndFill)

	closeTool := mcp.NewTool(
		"close_session",
		mcp.WithDescription("Close the browser window left open by the last fill"),
	)
	s.mcpServer.AddTool(closeTool, s.handleCloseSession)

	cancelTool := mcp.NewTool(
		"cancel_run",
		mcp.WithDescription("Abort an in-flight extraction or fill, or close the browser window of a finished fill"),
	)
	s.mcpServer.AddTool(cancelTool, s.handleCancelRun)

	resetTool := mcp.NewTool(
		"reset_run",
		mcp.WithDescription("Discard the current run, closing its browser window if one is open"),
	)
	s.mcpServer.AddTool(resetTool, s.handleResetRun)

	statusTool := mcp.NewTool(
		"pipeline_status",
		mcp.WithDescription("Report the state of the current run"),
	)
	s.mcpServer.AddTool(statusTool, s.handlePipelineStatus)
}

// Handler functions
func (s *Server) handleExtractDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.loadDocument(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pipeline.Extract(ctx, doc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatExtraction(path, result)), nil
}

func (s *Server) handleFillForm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	formURL, err := request.RequireString("form_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := dataArgument(request.GetArguments()["data"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if data == nil {
		if res := s.pipeline.Status().Extraction; res != nil {
			data = res.Map()
		}
	}

	summary, err := s.pipeline.Fill(ctx, formURL, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSummary(summary)), nil
}

func (s *Server) handleExtractAndFill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	formURL, err := request.RequireString("form_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.loadDocument(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, summary, err := s.pipeline.ExtractAndFill(ctx, doc, formURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatExtraction(path, result) + "\n" + formatSummary(summary)), nil
}

func (s *Server) handleCloseSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.pipeline.CloseSession(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Browser session closed"), nil
}

func (s *Server) handleCancelRun(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.pipeline.Cancel(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Run canceled"), nil
}

func (s *Server) handleResetRun(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.pipeline.Reset(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Run reset"), nil
}

func (s *Server) handlePipelineStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatStatus(s.pipeline.Status())), nil
}

// loadDocument reads a local file into a Document, enforcing the upload
// size limit before reading.
func (s *Server) loadDocument(path string) (*document.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}
	if s.config.MaxFileSize > 0 && info.Size() > s.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d bytes)", document.ErrTooLarge, info.Size(), s.config.MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return document.New(filepath.Base(path), mediaTypeFor(path), data, s.config.MaxFileSize)
}

func mediaTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return document.MediaTypePDF
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// dataArgument accepts the data argument either as an object or as a JSON
// encoded string. A missing argument yields nil.
func dataArgument(raw any) (map[string]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for key, value := range v {
			switch value := value.(type) {
			case string:
				out[key] = value
			case nil:
			default:
				out[key] = fmt.Sprint(value)
			}
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var out map[string]string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("data must be an object of string values: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("data must be an object, got %T", raw)
	}
}

// Formatting methods
func formatExtraction(path string, result *extraction.Result) string {
	text := fmt.Sprintf("Extracted fields from: %s\n", path)
	text += fmt.Sprintf("Document type: %s (confidence %.2f)\n", result.DocumentType, result.ClassificationConfidence)
	text += fmt.Sprintf("Text length: %d\n", result.TextLength)
	text += result.Message() + "\n"

	if len(result.Fields) > 0 {
		text += "\nFields:\n"
		for i, f := range result.Fields {
			text += fmt.Sprintf("%d. %s: %s (confidence %.2f)\n", i+1, f.Key, f.Value, f.Confidence)
		}
	}
	return text
}

func formatSummary(summary *pipeline.Summary) string {
	rate := summary.SuccessRatePercent()
	text := fmt.Sprintf("Successfully filled %d/%d fields (%s)\n", summary.FieldsFilled, summary.TotalFields, rate)
	text += fmt.Sprintf("Form: %s\n", summary.FormURL)
	text += fmt.Sprintf("Run: %s\n", summary.RunID)
	if summary.SessionID != "" {
		text += fmt.Sprintf("Session: %s (browser window left open for review)\n", summary.SessionID)
	}
	if summary.Screenshot != "" {
		text += fmt.Sprintf("Screenshot: %s\n", summary.Screenshot)
	}

	if len(summary.Outcomes) > 0 {
		text += "\nFields:\n"
		for _, o := range summary.Outcomes {
			line := fmt.Sprintf("  • %s: %s", o.Key, o.Outcome)
			if o.Detail != "" {
				line += fmt.Sprintf(" (%s)", o.Detail)
			}
			text += line + "\n"
		}
	}
	return text
}

func formatStatus(status pipeline.Status) string {
	if status.RunID == "" {
		return fmt.Sprintf("No active run (state: %s)\n", status.State)
	}

	text := fmt.Sprintf("Run: %s\n", status.RunID)
	text += fmt.Sprintf("State: %s\n", status.State)
	if len(status.History) > 0 {
		states := make([]string, len(status.History))
		for i, st := range status.History {
			states[i] = string(st)
		}
		text += fmt.Sprintf("History: %s\n", strings.Join(states, " -> "))
	}
	if status.DocumentType != "" {
		text += fmt.Sprintf("Document type: %s (%d fields)\n", status.DocumentType, status.Fields)
	}
	if status.FormURL != "" {
		text += fmt.Sprintf("Form: %s (%d descriptors)\n", status.FormURL, status.Descriptors)
	}
	if status.SessionState != "" {
		text += fmt.Sprintf("Session: %s\n", status.SessionState)
	}
	if status.Summary != nil {
		text += fmt.Sprintf("Filled: %d/%d (%s)\n", status.Summary.FieldsFilled, status.Summary.TotalFields, status.Summary.SuccessRatePercent())
	}
	if status.Error != "" {
		text += fmt.Sprintf("Error: %s\n", status.Error)
	}
	if status.Extraction != nil && len(status.Extraction.Fields) > 0 {
		data := status.Extraction.Map()
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		text += "\nExtracted:\n"
		for _, k := range keys {
			text += fmt.Sprintf("  %s: %s\n", k, data[k])
		}
	}
	return text
}

// Run serves the tools over standard I/O until the client disconnects.
func (s *Server) Run(_ context.Context) error {
	if s.config.IsDebug() {
		slog.Debug("Starting autofill MCP server in stdio mode", "name", s.config.ServerName, "version", s.config.Version)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
