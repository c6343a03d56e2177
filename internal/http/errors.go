package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/embeddings"
	"github.com/fyrsmithlabs/careerd/internal/pdftext"
	"github.com/fyrsmithlabs/careerd/internal/service"
	"github.com/fyrsmithlabs/careerd/internal/vectorstore"
)

const notConfiguredDetail = "service not configured"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// classify maps an error to a status code and a caller-safe detail.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, service.InputMessage(err)
	case errors.Is(err, vectorstore.ErrInvalidTenant), errors.Is(err, vectorstore.ErrMissingTenant):
		return http.StatusBadRequest, "invalid user_id"
	case errors.Is(err, embeddings.ErrEmbeddingUnavailable),
		errors.Is(err, embeddings.ErrNotConfigured),
		errors.Is(err, pdftext.ErrToolNotFound):
		return http.StatusServiceUnavailable, notConfiguredDetail
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, fmt.Sprint(he.Message)
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func statusOf(err error) int {
	code, _ := classify(err)
	return code
}

// handleError renders errors as {"detail": ...}. Server-side failures are
// logged with the request id; their detail is never echoed.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, detail := classify(err)
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("uri", c.Request().RequestURI),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err),
	}
	switch {
	case code >= http.StatusInternalServerError:
		s.logger.Error("request failed", fields...)
	case code != http.StatusNotFound && code != http.StatusMethodNotAllowed:
		s.logger.Debug("request rejected", fields...)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Detail: detail})
	}
	if err != nil {
		s.logger.Warn("writing error response", zap.Error(err))
	}
}
