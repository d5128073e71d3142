package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const keepAliveInterval = 30 * time.Second

// streamBoard sends the board view on connect and after every change.
// Changes that land while a frame is being written are coalesced into the
// next frame. The stream ends when the client goes away or closing fires.
func streamBoard(board Board, logger *log.Logger, closing <-chan struct{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		changes, stop := board.Watch()
		defer stop()

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			data, err := sonic.Marshal(viewOf(board))
			if err != nil {
				logger.WithError(err).Error("encode board view")
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()

		wait:
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-closing:
					return nil
				case <-changes:
					break wait
				case <-ticker.C:
					// Comment frame keeps idle proxies from closing the connection.
					if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
						return nil
					}
					flusher.Flush()
				}
			}
		}
	}
}
