// Package api exposes document intake over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/pipeline"
	"github.com/ehr/intake/internal/platform/auth"
)

// Processor runs one document file through the pipeline.
type Processor interface {
	Process(ctx context.Context, path string) pipeline.Result
}

// DocumentHandler accepts uploaded documents.
type DocumentHandler struct {
	proc   Processor
	logger zerolog.Logger
}

func NewDocumentHandler(proc Processor, logger zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{proc: proc, logger: logger}
}

// RegisterRoutes mounts the upload endpoint behind m, restricted to intake
// users.
func (h *DocumentHandler) RegisterRoutes(api *echo.Group, m ...echo.MiddlewareFunc) {
	m = append(m, auth.RequireRole(auth.RoleIntake))
	api.POST("/documents", h.Upload, m...)
}

// Upload stores the multipart "file" field in a scratch directory under its
// original base name, so detection sees the real extension, and answers with
// the pipeline result. Documents that fail the pipeline answer 422.
func (h *DocumentHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}

	dir, err := os.MkdirTemp("", "intake-upload-")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "create scratch directory")
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, uploadName(fh.Filename))
	if err := saveUpload(fh, path); err != nil {
		h.logger.Error().Err(err).Str("file", fh.Filename).Msg("failed to store upload")
		return echo.NewHTTPError(http.StatusInternalServerError, "store upload")
	}

	res := h.proc.Process(c.Request().Context(), path)
	res.FilePath = fh.Filename
	c.Set("document_id", res.DocumentID.String())

	status := http.StatusOK
	if res.Failed() {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, res)
}

// uploadName reduces a client-supplied file name to a safe base name.
func uploadName(name string) string {
	name = strings.TrimLeft(filepath.Base(strings.ReplaceAll(name, "\\", "/")), ".")
	if name == "" || name == "/" {
		return "upload"
	}
	return name
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
