package client

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-sync/api"
	"board-sync/auth"
	"board-sync/boardsync"
	"board-sync/domain"
	"board-sync/storage"
)

type signedIn struct{}

func (signedIn) Ensure(context.Context) (auth.Session, error) {
	return auth.Session{UserID: "user", Token: "t", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newServer(t *testing.T) *Client {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)
	path := storage.Path{AppID: "app", BoardID: "board"}
	store := storage.NewMemoryStore()
	store.Put(path, domain.InitialBoard())

	ctrl := boardsync.New(store, signedIn{}, logger, boardsync.Config{Path: path})
	t.Cleanup(ctrl.Close)
	ctrl.Start()
	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Mode() != boardsync.Online {
		if time.Now().After(deadline) {
			t.Fatal("controller did not come online")
		}
		time.Sleep(5 * time.Millisecond)
	}
	store.FailWrites(errors.New("read only"))

	e := echo.New()
	api.Register(e, ctrl, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", srv.Client())
}

func TestClientRoundTrip(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	v, err := c.Board(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if v.Mode != "online" || v.Board == nil || v.Board.TaskCount() != 0 {
		t.Fatalf("unexpected view %#v", v)
	}

	v, err = c.AddTask(ctx, "Buy milk")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	todo := v.Board.Columns[domain.ColumnTodo].Items
	if len(todo) != 1 {
		t.Fatalf("expected one task, got %#v", todo)
	}
	id := todo[0].ID

	if v, err = c.MoveTask(ctx, id, domain.ColumnTodo, domain.ColumnDone); err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(v.Board.Columns[domain.ColumnDone].Items) != 1 {
		t.Fatalf("task not moved: %#v", v.Board)
	}

	if v, err = c.DeleteTask(ctx, domain.ColumnDone, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if v.Board.TaskCount() != 0 {
		t.Fatalf("task not deleted: %#v", v.Board)
	}
}

func TestClientWatch(t *testing.T) {
	c := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := errors.New("done")
	frames := 0
	err := c.Watch(ctx, func(v api.View) error {
		frames++
		if frames == 1 {
			if _, err := c.AddTask(ctx, "watched"); err != nil {
				return err
			}
			return nil
		}
		if v.Board.TaskCount() == 1 {
			return done
		}
		return nil
	})
	if !errors.Is(err, done) {
		t.Fatalf("expected watch to stop on the added task, got %v", err)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(echo.New())
	t.Cleanup(srv.Close)
	_, err := New(srv.URL, nil).Board(context.Background())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}
