// Package api exposes the autofill pipeline over HTTP for the presentation
// layer.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/a3tai/doc-autofill/internal/artifact"
	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/logger"
	"github.com/a3tai/doc-autofill/internal/matcher"
	"github.com/a3tai/doc-autofill/internal/pipeline"
)

// Pipeline is the orchestrator surface the handlers drive.
type Pipeline interface {
	Extract(ctx context.Context, doc *document.Document) (*extraction.Result, error)
	Fill(ctx context.Context, formURL string, data map[string]string) (*pipeline.Summary, error)
	CloseSession(ctx context.Context) error
	Cancel(ctx context.Context) error
	Reset(ctx context.Context) error
	Status() pipeline.Status
}

// Handler serves the HTTP endpoints.
type Handler struct {
	pipeline    Pipeline
	artifacts   artifact.Store
	service     string
	version     string
	maxFileSize int64
}

// NewHandler builds a Handler. maxFileSize bounds uploads; <= 0 disables
// the bound.
func NewHandler(p Pipeline, artifacts artifact.Store, service, version string, maxFileSize int64) *Handler {
	return &Handler{
		pipeline:    p,
		artifacts:   artifacts,
		service:     service,
		version:     version,
		maxFileSize: maxFileSize,
	}
}

var endpoints = map[string]string{
	"extract":       "POST /extract",
	"fill_form":     "POST /fill-form",
	"download":      "GET /download/{filename}",
	"close_session": "POST /session/close",
	"cancel":        "POST /cancel",
	"reset":         "POST /reset",
	"status":        "GET /status",
	"cleanup":       "DELETE /cleanup",
}

// Health answers the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"service":   h.service,
		"version":   h.version,
		"platform":  runtime.GOOS,
		"endpoints": endpoints,
	})
}

// ExtractResponse is returned by POST /extract.
type ExtractResponse struct {
	Success                  bool               `json:"success"`
	RunID                    string             `json:"run_id,omitempty"`
	DocumentType             string             `json:"document_type"`
	ClassificationConfidence float64            `json:"classification_confidence"`
	ExtractedData            map[string]string  `json:"extracted_data"`
	Fields                   []extraction.Field `json:"fields"`
	TextLength               int                `json:"text_length"`
	Message                  string             `json:"message"`
}

// Extract parses the multipart "file" upload and extracts fields from it.
func (h *Handler) Extract(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing multipart file field \"file\"")
		return
	}

	data, err := h.readUpload(header)
	if err != nil {
		writeError(c, err)
		return
	}

	doc, err := document.New(header.Filename, uploadMediaType(header.Filename, header.Header.Get("Content-Type")), data, h.maxFileSize)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	res, err := h.pipeline.Extract(ctx, doc)
	if err != nil {
		logger.Warn(ctx, "extraction failed", "file", header.Filename, "error", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ExtractResponse{
		Success:                  true,
		RunID:                    h.pipeline.Status().RunID,
		DocumentType:             string(res.DocumentType),
		ClassificationConfidence: res.ClassificationConfidence,
		ExtractedData:            res.Map(),
		Fields:                   res.Fields,
		TextLength:               res.TextLength,
		Message:                  res.Message(),
	})
}

func (h *Handler) readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxFileSize > 0 {
		r = io.LimitReader(f, h.maxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// uploadMediaType trusts the declared content type unless the client sent
// a generic one for a .pdf file.
func uploadMediaType(filename, declared string) string {
	if declared == "" || strings.HasPrefix(declared, "application/octet-stream") {
		if strings.EqualFold(filepath.Ext(filename), ".pdf") {
			return document.MediaTypePDF
		}
	}
	return declared
}

// FillRequest is the body of POST /fill-form.
type FillRequest struct {
	FormURL string            `json:"form_url"`
	Data    map[string]string `json:"data"`
}

// FillResponse is returned by POST /fill-form.
type FillResponse struct {
	Success      bool                   `json:"success"`
	RunID        string                 `json:"run_id"`
	SessionID    string                 `json:"session_id,omitempty"`
	FieldsFilled int                    `json:"fields_filled"`
	TotalFields  int                    `json:"total_fields"`
	SuccessRate  string                 `json:"success_rate"`
	SuccessRatio float64                `json:"success_ratio"`
	Screenshot   string                 `json:"screenshot,omitempty"`
	Matches      []matcher.Match        `json:"matches"`
	Outcomes     []browser.FieldOutcome `json:"outcomes"`
	Message      string                 `json:"message"`
}

// FillForm probes the form, fills it and leaves the browser open.
func (h *Handler) FillForm(c *gin.Context) {
	var req FillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.FormURL) == "" {
		badRequest(c, "form_url is required")
		return
	}

	ctx := c.Request.Context()
	summary, err := h.pipeline.Fill(ctx, req.FormURL, req.Data)
	if err != nil {
		logger.Warn(ctx, "form fill failed", "form_url", req.FormURL, "error", err)
		writeError(c, err)
		return
	}

	rate := summary.SuccessRatePercent()
	c.JSON(http.StatusOK, FillResponse{
		Success:      true,
		RunID:        summary.RunID,
		SessionID:    summary.SessionID,
		FieldsFilled: summary.FieldsFilled,
		TotalFields:  summary.TotalFields,
		SuccessRate:  rate,
		SuccessRatio: summary.SuccessRatio,
		Screenshot:   summary.Screenshot,
		Matches:      summary.Matches,
		Outcomes:     summary.Outcomes,
		Message:      fmt.Sprintf("Successfully filled %d/%d fields (%s)", summary.FieldsFilled, summary.TotalFields, rate),
	})
}

// Download streams a stored screenshot.
func (h *Handler) Download(c *gin.Context) {
	id := c.Param("id")
	data, err := h.artifacts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
				Detail: "File not found: " + id,
				Kind:   KindNotFound,
			})
			return
		}
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id))
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// CloseSession closes the idle-open browser window of the current run.
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.pipeline.CloseSession(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session closed"})
}

// Cancel aborts an in-flight extraction or fill, or closes the idle-open
// session.
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.pipeline.Cancel(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Run canceled"})
}

// Reset discards the current run.
func (h *Handler) Reset(c *gin.Context) {
	if err := h.pipeline.Reset(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Run reset"})
}

// Status reports the current run.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Status())
}

// Cleanup removes stored screenshots.
func (h *Handler) Cleanup(c *gin.Context) {
	n, err := h.artifacts.Cleanup(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": n, "message": "Cleanup successful"})
}
