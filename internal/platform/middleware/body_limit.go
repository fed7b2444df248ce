package middleware

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// uploadOverhead is the slack allowed on top of the file limit for multipart
// framing and form fields.
const uploadOverhead = 1 << 20

// BodyLimit rejects request bodies larger than maxFile plus multipart
// overhead with 413. The declared Content-Length is checked first; the body
// is also wrapped so a missing or wrong length cannot get past the limit.
func BodyLimit(maxFile int64) echo.MiddlewareFunc {
	limit := maxFile + uploadOverhead
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: limit}
			return next(c)
		}
	}
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return n, err
}
