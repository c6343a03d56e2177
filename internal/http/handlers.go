package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/careerd/internal/service"
)

// StatusResponse is the response body for GET /.
type StatusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// InterestsRequest is the request body for POST /user/interests.
type InterestsRequest struct {
	UserID    string   `json:"user_id"`
	Interests []string `json:"interests"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok", Service: ServiceName, Version: s.version})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleUploadCV accepts a multipart form with user_id and either a file
// or a text field.
func (s *Server) handleUploadCV(c echo.Context) error {
	req := service.UploadRequest{
		UserID: c.FormValue("user_id"),
		Text:   c.FormValue("text"),
	}

	fh, err := c.FormFile("file")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
		}
		defer f.Close()
		req.File = f
		req.FileName = fh.Filename
		req.ContentType = fh.Header.Get(echo.HeaderContentType)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return err
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}

	res, err := s.svc.UploadCV(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleInterests(c echo.Context) error {
	var req InterestsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.svc.SaveInterests(c.Request().Context(), req.UserID, req.Interests)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	res, err := s.svc.Analyze(c.Request().Context(), c.QueryParam("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleRecommend(c echo.Context) error {
	interests := splitInterests(c.QueryParams()["interests"])
	rec, err := s.svc.Recommend(c.Request().Context(), c.QueryParam("user_id"), interests)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// splitInterests accepts repeated parameters as well as comma-separated
// values within one parameter.
func splitInterests(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
