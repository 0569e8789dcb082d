package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/config"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/pipeline"
)

type fakePipeline struct {
	doc        *document.Document
	result     *extraction.Result
	extractErr error

	fillURL  string
	fillData map[string]string
	summary  *pipeline.Summary
	fillErr  error

	closed   int
	canceled int
	resets   int
	status   pipeline.Status
}

func (f *fakePipeline) Extract(_ context.Context, doc *document.Document) (*extraction.Result, error) {
	f.doc = doc
	return f.result, f.extractErr
}

func (f *fakePipeline) Fill(_ context.Context, formURL string, data map[string]string) (*pipeline.Summary, error) {
	f.fillURL, f.fillData = formURL, data
	return f.summary, f.fillErr
}

func (f *fakePipeline) ExtractAndFill(_ context.Context, doc *document.Document, formURL string) (*extraction.Result, *pipeline.Summary, error) {
	f.doc, f.fillURL = doc, formURL
	return f.result, f.summary, f.extractErr
}

func (f *fakePipeline) CloseSession(context.Context) error {
	f.closed++
	return nil
}

func (f *fakePipeline) Cancel(context.Context) error {
	f.canceled++
	return nil
}

func (f *fakePipeline) Reset(context.Context) error {
	f.resets++
	return nil
}

func (f *fakePipeline) Status() pipeline.Status { return f.status }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeStdio
	cfg.ServerName = "test-server"
	cfg.MaxFileSize = 1024
	return cfg
}

func newTestServer(t *testing.T, p *fakePipeline) *Server {
	t.Helper()
	s, err := NewServer(testConfig(), p)
	require.NoError(t, err)
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func writePDF(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// Helper function to extract text from a CallToolResult
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}
	return ""
}

var sampleResult = &extraction.Result{
	DocumentType:             extraction.DocumentTypeAadhaar,
	ClassificationConfidence: 0.9,
	Fields: []extraction.Field{
		{Key: "name", Value: "Asha Rao", Confidence: 0.8},
		{Key: "dob", Value: "12/03/1990", Confidence: 0.9},
	},
	TextLength: 240,
}

var sampleSummary = &pipeline.Summary{
	RunID:        "run-1",
	FormURL:      "https://forms.example/apply",
	FieldsFilled: 1,
	TotalFields:  2,
	SuccessRatio: 0.5,
	SessionID:    "sess-1",
	Screenshot:   "form_filled_a.png",
	Outcomes: []browser.FieldOutcome{
		{Key: "name", Outcome: browser.OutcomeFilled},
		{Key: "dob", Outcome: browser.OutcomeSkipped, Detail: "element not found"},
	},
}

func TestNewServer(t *testing.T) {
	s, err := NewServer(testConfig(), &fakePipeline{})
	require.NoError(t, err)
	assert.NotNil(t, s.mcpServer)

	_, err = NewServer(testConfig(), nil)
	assert.Error(t, err)
}

func TestHandleExtractDocument(t *testing.T) {
	p := &fakePipeline{result: sampleResult}
	s := newTestServer(t, p)
	path := writePDF(t, "card.pdf", []byte("%PDF-1.4 test"))

	result, err := s.handleExtractDocument(context.Background(), callRequest(map[string]interface{}{"path": path}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Document type: aadhaar")
	assert.Contains(t, text, "Successfully extracted 2 fields")
	assert.Contains(t, text, "1. name: Asha Rao")

	require.NotNil(t, p.doc)
	assert.Equal(t, "card.pdf", p.doc.Name)
	assert.Equal(t, document.MediaTypePDF, p.doc.MediaType)
}

func TestHandleExtractDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		file func(t *testing.T) string
		want string
	}{
		{
			name: "missing path",
			args: map[string]interface{}{},
		},
		{
			name: "file not found",
			args: map[string]interface{}{"path": "/nonexistent/card.pdf"},
			want: "cannot access file",
		},
		{
			name: "not a pdf",
			file: func(t *testing.T) string { return writePDF(t, "card.png", []byte("png")) },
			want: "unsupported media type",
		},
		{
			name: "too large",
			file: func(t *testing.T) string { return writePDF(t, "big.pdf", make([]byte, 2048)) },
			want: "document too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{result: sampleResult}
			s := newTestServer(t, p)
			args := tt.args
			if tt.file != nil {
				args = map[string]interface{}{"path": tt.file(t)}
			}

			result, err := s.handleExtractDocument(context.Background(), callRequest(args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractTextFromResult(result), tt.want)
			assert.Nil(t, p.doc)
		})
	}
}

func TestHandleFillForm(t *testing.T) {
	p := &fakePipeline{summary: sampleSummary}
	s := newTestServer(t, p)

	result, err := s.handleFillForm(context.Background(), callRequest(map[string]interface{}{
		"form_url": "forms.example/apply",
		"data":     map[string]interface{}{"name": "Asha Rao", "age": 34, "empty": nil},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Successfully filled 1/2 fields (50.0%)")
	assert.Contains(t, text, "Session: sess-1")
	assert.Contains(t, text, "dob: skipped (element not found)")

	assert.Equal(t, "forms.example/apply", p.fillURL)
	assert.Equal(t, map[string]string{"name": "Asha Rao", "age": "34"}, p.fillData)
}

func TestHandleFillFormDefaultsToExtraction(t *testing.T) {
	p := &fakePipeline{
		summary: sampleSummary,
		status:  pipeline.Status{RunID: "run-1", Extraction: sampleResult},
	}
	s := newTestServer(t, p)

	result, err := s.handleFillForm(context.Background(), callRequest(map[string]interface{}{
		"form_url": "https://forms.example/apply",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, map[string]string{"name": "Asha Rao", "dob": "12/03/1990"}, p.fillData)
}

func TestHandleFillFormErrors(t *testing.T) {
	p := &fakePipeline{fillErr: pipeline.ErrRunActive}
	s := newTestServer(t, p)

	result, err := s.handleFillForm(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleFillForm(context.Background(), callRequest(map[string]interface{}{
		"form_url": "https://x.test",
		"data":     `{"name":"Asha"}`,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractTextFromResult(result), pipeline.ErrRunActive.Error())
	assert.Equal(t, map[string]string{"name": "Asha"}, p.fillData)
}

func TestDataArgument(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    map[string]string
		wantErr bool
	}{
		{name: "nil", raw: nil},
		{name: "blank string", raw: "  "},
		{name: "object", raw: map[string]any{"pan": "ABCDE1234F"}, want: map[string]string{"pan": "ABCDE1234F"}},
		{name: "json string", raw: `{"pincode":"560001"}`, want: map[string]string{"pincode": "560001"}},
		{name: "bad json", raw: `{"pincode":`, wantErr: true},
		{name: "wrong type", raw: []any{"x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dataArgument(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleExtractAndFill(t *testing.T) {
	p := &fakePipeline{result: sampleResult, summary: sampleSummary}
	s := newTestServer(t, p)
	path := writePDF(t, "card.pdf", []byte("%PDF-1.4 test"))

	result, err := s.handleExtractAndFill(context.Background(), callRequest(map[string]interface{}{
		"path":     path,
		"form_url": "https://forms.example/apply",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Successfully extracted 2 fields")
	assert.Contains(t, text, "Successfully filled 1/2 fields")
	assert.Equal(t, "https://forms.example/apply", p.fillURL)
}

func TestSessionTools(t *testing.T) {
	p := &fakePipeline{}
	s := newTestServer(t, p)
	ctx := context.Background()

	result, err := s.handleCloseSession(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Browser session closed", extractTextFromResult(result))
	assert.Equal(t, 1, p.closed)

	result, err = s.handleCancelRun(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Run canceled", extractTextFromResult(result))
	assert.Equal(t, 1, p.canceled)

	result, err = s.handleResetRun(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Run reset", extractTextFromResult(result))
	assert.Equal(t, 1, p.resets)
}

func TestHandlePipelineStatus(t *testing.T) {
	p := &fakePipeline{status: pipeline.Status{State: pipeline.StateIdle}}
	s := newTestServer(t, p)

	result, err := s.handlePipelineStatus(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "No active run (state: idle)")

	p.status = pipeline.Status{
		RunID:        "run-1",
		State:        pipeline.StateCompleted,
		History:      []pipeline.State{pipeline.StateIdle, pipeline.StateAwaitingFormURL, pipeline.StateFilling, pipeline.StateCompleted},
		FormURL:      "https://forms.example/apply",
		Descriptors:  4,
		SessionState: browser.StateIdleOpen,
		Summary:      sampleSummary,
		Extraction:   sampleResult,
	}
	result, err = s.handlePipelineStatus(context.Background(), callRequest(nil))
	require.NoError(t, err)

	text := extractTextFromResult(result)
	assert.Contains(t, text, "State: completed")
	assert.Contains(t, text, "History: idle -> awaiting_form_url -> filling -> completed")
	assert.Contains(t, text, "Form: https://forms.example/apply (4 descriptors)")
	assert.Contains(t, text, "Filled: 1/2 (50.0%)")
	assert.Contains(t, text, "dob: 12/03/1990")
}

func TestMediaTypeFor(t *testing.T) {
	assert.Equal(t, document.MediaTypePDF, mediaTypeFor("/tmp/A.PDF"))
	assert.Equal(t, "application/octet-stream", mediaTypeFor("/tmp/noext"))
}
