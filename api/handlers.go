// Package api exposes a board controller over HTTP and server-sent events.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-sync/boardsync"
	"board-sync/domain"
)

const postMaxSize = 64 * 1024 // 64 KiB

// Board is the controller surface the handlers drive.
type Board interface {
	State() boardsync.State
	Watch() (<-chan struct{}, func())
	ColumnOrder() []string
	AddTask(content string)
	DeleteTask(columnID, taskID string)
	MoveTask(taskID, fromColumnID, toColumnID string)
}

// View is the JSON shape served by every endpoint and stream frame.
type View struct {
	Board       *domain.Board `json:"board"`
	Loading     bool          `json:"loading"`
	Offline     bool          `json:"offline"`
	Mode        string        `json:"mode"`
	ColumnOrder []string      `json:"columnOrder"`
}

func viewOf(b Board) View {
	st := b.State()
	return View{
		Board:       st.Board,
		Loading:     st.Loading(),
		Offline:     st.Offline(),
		Mode:        st.Mode.String(),
		ColumnOrder: b.ColumnOrder(),
	}
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Register wires up all routes on the provided Echo instance. Open streams
// end when e.Shutdown is called.
func Register(e *echo.Echo, board Board, logger *log.Logger) {
	closing, stop := context.WithCancel(context.Background())
	e.Server.RegisterOnShutdown(stop)

	g := e.Group("/api", bodyMiddleware()...)
	g.GET("/board", getBoard(board))
	g.POST("/tasks", postTask(board))
	g.DELETE("/columns/:column/tasks/:id", deleteTask(board))
	g.POST("/tasks/:id/move", moveTask(board))
	g.POST("/commands", postCommands(board, logger))
	e.GET("/stream", streamBoard(board, logger, closing.Done()))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(board Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, viewOf(board))
	}
}

func postTask(board Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.AddTaskData
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board.AddTask(req.Content)
		return c.JSON(http.StatusAccepted, viewOf(board))
	}
}

func deleteTask(board Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		board.DeleteTask(c.Param("column"), c.Param("id"))
		return c.JSON(http.StatusAccepted, viewOf(board))
	}
}

func moveTask(board Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board.MoveTask(c.Param("id"), req.From, req.To)
		return c.JSON(http.StatusAccepted, viewOf(board))
	}
}

// postCommands applies a batch of commands in order. The whole batch is
// validated before anything is applied.
func postCommands(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		cmds := make([]domain.Command, 0, 4)
		if err := decodeBody(c.Request().Body, &cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		apply := make([]func(), 0, len(cmds))
		for i, cmd := range cmds {
			fn, err := commandFunc(board, cmd)
			if err != nil {
				logger.WithError(err).WithField("index", i).Debug("rejected command batch")
				return c.String(http.StatusBadRequest, err.Error())
			}
			apply = append(apply, fn)
		}
		for _, fn := range apply {
			fn()
		}
		return c.JSON(http.StatusAccepted, viewOf(board))
	}
}

func commandFunc(board Board, cmd domain.Command) (func(), error) {
	switch cmd.Type {
	case domain.AddTaskCommand:
		var d domain.AddTaskData
		if err := unmarshalData(cmd, &d); err != nil {
			return nil, err
		}
		return func() { board.AddTask(d.Content) }, nil
	case domain.DeleteTaskCommand:
		var d domain.DeleteTaskData
		if err := unmarshalData(cmd, &d); err != nil {
			return nil, err
		}
		return func() { board.DeleteTask(d.ColumnID, d.TaskID) }, nil
	case domain.MoveTaskCommand:
		var d domain.MoveTaskData
		if err := unmarshalData(cmd, &d); err != nil {
			return nil, err
		}
		return func() { board.MoveTask(d.TaskID, d.From, d.To) }, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

func unmarshalData(cmd domain.Command, v any) error {
	if len(cmd.Data) == 0 {
		return fmt.Errorf("%s: missing data", cmd.Type)
	}
	if err := sonic.Unmarshal([]byte(cmd.Data), v); err != nil {
		return fmt.Errorf("%s: invalid data", cmd.Type)
	}
	return nil
}

func decodeBody(body io.Reader, v any) error {
	if body == nil {
		return errors.New("empty body")
	}
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, postMaxSize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
