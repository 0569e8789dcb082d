package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/a3tai/doc-autofill/internal/artifact"
	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
	"github.com/a3tai/doc-autofill/internal/pipeline"
)

// Error kinds let clients tell a bad document or URL from a conflict or a
// server fault.
const (
	KindExtraction = "extraction"
	KindProbe      = "probe"
	KindSession    = "session"
	KindConflict   = "conflict"
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindInternal   = "internal"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// classifyError maps a domain error onto an HTTP status and payload.
func classifyError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Detail: err.Error(), Kind: KindInternal}

	var (
		extractErr *extraction.Error
		probeErr   *form.ProbeError
		openErr    *browser.OpenError
	)
	switch {
	case errors.As(err, &extractErr):
		resp.Kind, resp.Reason = KindExtraction, extractErr.Reason.String()
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &probeErr):
		resp.Kind, resp.Reason = KindProbe, probeErr.Reason.String()
		if probeErr.Reason == form.Timeout {
			return http.StatusGatewayTimeout, resp
		}
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &openErr):
		resp.Kind, resp.Reason = KindSession, openErr.Reason.String()
		if openErr.Reason == browser.Timeout {
			return http.StatusGatewayTimeout, resp
		}
		return http.StatusBadGateway, resp
	case errors.Is(err, browser.ErrSessionClosed):
		resp.Kind, resp.Reason = KindSession, "SessionClosed"
		return http.StatusConflict, resp
	case errors.Is(err, pipeline.ErrRunActive):
		resp.Kind, resp.Reason = KindConflict, "RunActive"
		return http.StatusConflict, resp
	case errors.Is(err, pipeline.ErrCanceled):
		resp.Kind, resp.Reason = KindConflict, "Canceled"
		return http.StatusConflict, resp
	case errors.Is(err, pipeline.ErrInvalidTransition):
		resp.Kind, resp.Reason = KindConflict, "InvalidTransition"
		return http.StatusConflict, resp
	case errors.Is(err, pipeline.ErrNoRun), errors.Is(err, pipeline.ErrNoSession):
		resp.Kind = KindNotFound
		return http.StatusNotFound, resp
	case errors.Is(err, artifact.ErrNotFound):
		resp.Kind = KindNotFound
		return http.StatusNotFound, resp
	case errors.Is(err, document.ErrUnsupportedMediaType):
		resp.Kind, resp.Reason = KindValidation, "UnsupportedMediaType"
		return http.StatusUnsupportedMediaType, resp
	case errors.Is(err, document.ErrTooLarge):
		resp.Kind, resp.Reason = KindValidation, "TooLarge"
		return http.StatusRequestEntityTooLarge, resp
	case errors.Is(err, document.ErrEmpty),
		errors.Is(err, pipeline.ErrNoData),
		errors.Is(err, artifact.ErrInvalidID):
		resp.Kind = KindValidation
		return http.StatusBadRequest, resp
	}
	return http.StatusInternalServerError, resp
}

func writeError(c *gin.Context, err error) {
	status, resp := classifyError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Detail: detail, Kind: KindValidation})
}
