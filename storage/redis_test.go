package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

var testPath = Path{AppID: "app", BoardID: "board"}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "chan", log.New()), mr, client
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestPathString(t *testing.T) {
	p := Path{AppID: "default-kanban-app", BoardID: "main-board"}
	if got := p.String(); got != "artifacts/default-kanban-app/public/data/kanbanBoards/main-board" {
		t.Fatalf("unexpected path %s", got)
	}
}

func TestRedisStoreWrite(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	board := domain.InitialBoard()
	if err := store.Write(context.Background(), testPath, board); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := mr.Get(testPath.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, err := domain.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(board) {
		t.Fatalf("unexpected stored board %#v", got)
	}
}

func TestRedisStoreSubscribeMissingDocument(t *testing.T) {
	store, _, _ := newRedisStore(t)
	sub, err := store.Subscribe(context.Background(), testPath)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ev := nextEvent(t, sub)
	if ev.Err != nil || ev.Snapshot.Exists {
		t.Fatalf("expected missing snapshot, got %#v", ev)
	}
}

func TestRedisStoreSubscribeReceivesWrites(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()
	if err := store.Write(ctx, testPath, domain.InitialBoard()); err != nil {
		t.Fatalf("write: %v", err)
	}
	sub, err := store.Subscribe(ctx, testPath)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ev := nextEvent(t, sub)
	if ev.Err != nil || !ev.Snapshot.Exists || ev.Snapshot.Board.TaskCount() != 0 {
		t.Fatalf("unexpected initial event %#v", ev)
	}

	next, _ := domain.AddTask(domain.InitialBoard(), "from elsewhere")
	if err := store.Write(ctx, testPath, next); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev = nextEvent(t, sub)
	if ev.Err != nil || !ev.Snapshot.Board.Equal(next) {
		t.Fatalf("unexpected update event %#v", ev)
	}
}

func TestRedisStoreSubscribeIgnoresOtherDocuments(t *testing.T) {
	store, _, client := newRedisStore(t)
	ctx := context.Background()
	sub, err := store.Subscribe(ctx, testPath)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	nextEvent(t, sub)

	other := Path{AppID: "app", BoardID: "other"}
	if err := store.Write(ctx, other, domain.InitialBoard()); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event for other document %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	if err := client.Set(ctx, testPath.String(), "{not json", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := client.Publish(ctx, "chan", testPath.String()).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ev := nextEvent(t, sub); ev.Err == nil {
		t.Fatalf("expected decode error, got %#v", ev)
	}
}

func TestRedisStoreSubscribeUnreachable(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := store.Subscribe(ctx, testPath); err == nil {
		t.Fatal("expected subscribe error when redis is down")
	}
}

func TestRedisStoreSubscriptionClose(t *testing.T) {
	store, _, _ := newRedisStore(t)
	sub, err := store.Subscribe(context.Background(), testPath)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	nextEvent(t, sub)

	done := make(chan struct{})
	go func() {
		sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed event channel")
	}
}
