package storage

import (
	"context"
	"errors"
	"testing"

	"board-sync/domain"
)

func TestMemoryStoreSubscribe(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sub, err := store.Subscribe(ctx, testPath)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if ev := nextEvent(t, sub); ev.Snapshot.Exists {
		t.Fatalf("expected missing document, got %#v", ev)
	}
	board := domain.InitialBoard()
	if err := store.Write(ctx, testPath, board); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := nextEvent(t, sub); !ev.Snapshot.Exists || !ev.Snapshot.Board.Equal(board) {
		t.Fatalf("unexpected event %#v", ev)
	}

	boom := errors.New("listener failed")
	store.InjectError(testPath, boom)
	if ev := nextEvent(t, sub); !errors.Is(ev.Err, boom) {
		t.Fatalf("expected injected error, got %#v", ev)
	}
}

func TestMemoryStoreFailures(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")
	store.FailWrites(boom)
	if err := store.Write(context.Background(), testPath, domain.InitialBoard()); !errors.Is(err, boom) {
		t.Fatalf("expected write failure, got %v", err)
	}
	if store.Writes() != 0 {
		t.Fatalf("expected no recorded writes, got %d", store.Writes())
	}
	store.FailSubscribe(boom)
	if _, err := store.Subscribe(context.Background(), testPath); !errors.Is(err, boom) {
		t.Fatalf("expected subscribe failure, got %v", err)
	}
}

func TestMemoryStoreGetIsolated(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testPath, domain.InitialBoard())
	b, ok := store.Get(testPath)
	if !ok {
		t.Fatal("expected stored document")
	}
	b.Columns[domain.ColumnTodo] = domain.Column{Name: "changed"}
	again, _ := store.Get(testPath)
	if again.Columns[domain.ColumnTodo].Name != "To Do" {
		t.Fatal("stored document was mutated through Get")
	}
}
