package domain

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func sampleBoard() Board {
	b := InitialBoard()
	b.Columns[ColumnTodo] = Column{Name: "To Do", Items: []Task{{ID: "t1", Content: "one"}, {ID: "t2", Content: "two"}, {ID: "t3", Content: "three"}}}
	b.Columns[ColumnInProgress] = Column{Name: "In Progress", Items: []Task{{ID: "t4", Content: "four"}}}
	return b
}

func stubIDs(t *testing.T, ids ...string) {
	t.Helper()
	orig := NewTaskID
	i := 0
	NewTaskID = func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
	t.Cleanup(func() { NewTaskID = orig })
}

func TestAddTaskAppendsToTodo(t *testing.T) {
	b := sampleBoard()
	before := b.Clone()

	out, changed := AddTask(b, "Buy milk")
	if !changed {
		t.Fatal("expected board to change")
	}
	todo := out.Columns[ColumnTodo].Items
	if len(todo) != 4 {
		t.Fatalf("expected 4 todo items, got %d", len(todo))
	}
	added := todo[3]
	if added.Content != "Buy milk" || !strings.HasPrefix(added.ID, TaskIDPrefix) {
		t.Fatalf("unexpected task %#v", added)
	}
	if _, found := before.Find(added.ID); found {
		t.Fatalf("id %s already present in input board", added.ID)
	}
	if out.TaskCount() != before.TaskCount()+1 {
		t.Fatalf("expected exactly one new task, got %d -> %d", before.TaskCount(), out.TaskCount())
	}
	if !b.Equal(before) {
		t.Fatal("input board was mutated")
	}
}

func TestAddTaskBlankContent(t *testing.T) {
	for _, content := range []string{"", " ", "\t\n  "} {
		b := sampleBoard()
		out, changed := AddTask(b, content)
		if changed || !out.Equal(b) {
			t.Fatalf("blank content %q changed the board", content)
		}
	}
}

func TestAddTaskKeepsContentAsGiven(t *testing.T) {
	out, _ := AddTask(sampleBoard(), "  padded  ")
	items := out.Columns[ColumnTodo].Items
	if got := items[len(items)-1].Content; got != "  padded  " {
		t.Fatalf("expected content preserved, got %q", got)
	}
}

func TestAddTaskWithoutTodoColumn(t *testing.T) {
	b := Board{Columns: map[string]Column{ColumnDone: {Name: "Done", Items: []Task{}}}}
	out, changed := AddTask(b, "x")
	if changed || !out.Equal(b) {
		t.Fatal("expected unchanged board without todo column")
	}
}

func TestAddTaskRetriesTakenID(t *testing.T) {
	stubIDs(t, "t1", "t2", "fresh")
	out, changed := AddTask(sampleBoard(), "x")
	if !changed {
		t.Fatal("expected board to change")
	}
	items := out.Columns[ColumnTodo].Items
	if got := items[len(items)-1].ID; got != "fresh" {
		t.Fatalf("expected fresh id, got %s", got)
	}
}

func TestAddTaskGivesUpOnCollidingIDs(t *testing.T) {
	stubIDs(t, "t1")
	b := sampleBoard()
	if out, changed := AddTask(b, "x"); changed || !out.Equal(b) {
		t.Fatal("expected unchanged board when no fresh id can be minted")
	}
}

func TestAddTaskIsNotIdempotent(t *testing.T) {
	b, _ := AddTask(sampleBoard(), "same")
	b, _ = AddTask(b, "same")
	items := b.Columns[ColumnTodo].Items
	if len(items) != 5 || items[3].ID == items[4].ID {
		t.Fatalf("expected two distinct tasks, got %#v", items[3:])
	}
}

func TestDeleteTask(t *testing.T) {
	b := sampleBoard()
	out, changed := DeleteTask(b, ColumnTodo, "t2")
	if !changed {
		t.Fatal("expected board to change")
	}
	want := []Task{{ID: "t1", Content: "one"}, {ID: "t3", Content: "three"}}
	if got := out.Columns[ColumnTodo].Items; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected items %#v", got)
	}
	if out.TaskCount() != b.TaskCount()-1 {
		t.Fatalf("expected count %d, got %d", b.TaskCount()-1, out.TaskCount())
	}
	if len(b.Columns[ColumnTodo].Items) != 3 {
		t.Fatal("input board was mutated")
	}
}

func TestDeleteTaskNoop(t *testing.T) {
	b := sampleBoard()
	cases := []struct {
		column string
		task   string
	}{
		{"missing", "t1"},
		{ColumnTodo, "missing"},
		{ColumnInProgress, "t1"},
	}
	for _, tc := range cases {
		out, changed := DeleteTask(b, tc.column, tc.task)
		if changed || !out.Equal(b) {
			t.Fatalf("DeleteTask(%s, %s) changed the board", tc.column, tc.task)
		}
	}
}

func TestDeleteTaskIdempotent(t *testing.T) {
	once, _ := DeleteTask(sampleBoard(), ColumnTodo, "t1")
	twice, changed := DeleteTask(once, ColumnTodo, "t1")
	if changed || !twice.Equal(once) {
		t.Fatal("second delete should be a no-op")
	}
}

func TestMoveTask(t *testing.T) {
	b := sampleBoard()
	out, changed := MoveTask(b, "t2", ColumnTodo, ColumnInProgress)
	if !changed {
		t.Fatal("expected board to change")
	}
	progress := out.Columns[ColumnInProgress].Items
	if len(progress) != 2 || progress[1].ID != "t2" {
		t.Fatalf("expected t2 appended to inProgress, got %#v", progress)
	}
	if col, _ := out.Find("t2"); col != ColumnInProgress {
		t.Fatalf("expected t2 only in inProgress, found in %s", col)
	}
	for _, task := range out.Columns[ColumnTodo].Items {
		if task.ID == "t2" {
			t.Fatal("t2 still present in todo")
		}
	}
	if out.TaskCount() != b.TaskCount() {
		t.Fatalf("task count changed: %d -> %d", b.TaskCount(), out.TaskCount())
	}
	if len(b.Columns[ColumnInProgress].Items) != 1 {
		t.Fatal("input board was mutated")
	}
}

func TestMoveTaskNoop(t *testing.T) {
	b := sampleBoard()
	cases := []struct {
		task, from, to string
	}{
		{"t1", ColumnTodo, ColumnTodo},
		{"t1", "missing", ColumnDone},
		{"t1", ColumnTodo, "missing"},
		{"t4", ColumnTodo, ColumnDone},
		{"missing", ColumnTodo, ColumnDone},
	}
	for _, tc := range cases {
		out, changed := MoveTask(b, tc.task, tc.from, tc.to)
		if changed || !out.Equal(b) {
			t.Fatalf("MoveTask(%s, %s, %s) changed the board", tc.task, tc.from, tc.to)
		}
	}
}

func TestBuyMilkScenario(t *testing.T) {
	b := InitialBoard()
	b, _ = AddTask(b, "Buy milk")
	todo := b.Columns[ColumnTodo].Items
	if len(todo) != 1 || todo[0].Content != "Buy milk" {
		t.Fatalf("unexpected todo %#v", todo)
	}
	b, changed := MoveTask(b, todo[0].ID, ColumnTodo, ColumnDone)
	if !changed {
		t.Fatal("expected move to apply")
	}
	if n := len(b.Columns[ColumnTodo].Items); n != 0 {
		t.Fatalf("expected empty todo, got %d items", n)
	}
	done := b.Columns[ColumnDone].Items
	if len(done) != 1 || done[0].Content != "Buy milk" {
		t.Fatalf("unexpected done %#v", done)
	}
}

func TestTaskIDsStayUnique(t *testing.T) {
	b := InitialBoard()
	for i := 0; i < 50; i++ {
		b, _ = AddTask(b, fmt.Sprintf("task %d", i))
	}
	seen := map[string]bool{}
	for _, col := range b.Columns {
		for _, task := range col.Items {
			if seen[task.ID] {
				t.Fatalf("duplicate id %s", task.ID)
			}
			seen[task.ID] = true
		}
	}
	if len(seen) != 50 {
		t.Fatalf("expected 50 tasks, got %d", len(seen))
	}
}
