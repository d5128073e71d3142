package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// bodyMiddleware accepts gzip request bodies and caps the size of what the
// client sends. The decompressed stream is capped separately in decodeBody.
func bodyMiddleware() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		rejectBadGzip(middleware.Decompress()),
		middleware.BodyLimit("64K"),
	}
}

// rejectBadGzip turns a malformed gzip header into 400 instead of echo's 500.
func rejectBadGzip(decompress echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := decompress(next)
		return func(c echo.Context) error {
			err := h(c)
			if errors.Is(err, gzip.ErrHeader) || errors.Is(err, io.ErrUnexpectedEOF) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			return err
		}
	}
}
