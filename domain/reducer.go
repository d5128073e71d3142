package domain

import (
	"strings"

	"github.com/google/uuid"
)

// TaskIDPrefix namespaces client generated task ids.
const TaskIDPrefix = "task-"

// NewTaskID mints a fresh task id. Tests may replace it.
var NewTaskID = func() string {
	return TaskIDPrefix + uuid.NewString()
}

const maxIDAttempts = 8

// AddTask appends a task with the given content to the todo column. Blank
// content or a board without a todo column leave the board unchanged.
func AddTask(b Board, content string) (Board, bool) {
	if strings.TrimSpace(content) == "" {
		return b, false
	}
	todo, ok := b.Columns[ColumnTodo]
	if !ok {
		return b, false
	}
	id := ""
	for i := 0; i < maxIDAttempts; i++ {
		candidate := NewTaskID()
		if _, taken := b.Find(candidate); !taken {
			id = candidate
			break
		}
	}
	if id == "" {
		return b, false
	}

	items := make([]Task, len(todo.Items), len(todo.Items)+1)
	copy(items, todo.Items)
	items = append(items, Task{ID: id, Content: content})

	out := b.withColumns()
	out.Columns[ColumnTodo] = Column{Name: todo.Name, Items: items}
	return out, true
}

// DeleteTask removes taskID from the given column, keeping the relative order
// of the remaining tasks. Unknown columns or tasks leave the board unchanged.
func DeleteTask(b Board, columnID, taskID string) (Board, bool) {
	col, ok := b.Columns[columnID]
	if !ok || col.indexOf(taskID) < 0 {
		return b, false
	}
	out := b.withColumns()
	out.Columns[columnID] = Column{Name: col.Name, Items: without(col.Items, taskID)}
	return out, true
}

// MoveTask moves taskID from one column to the end of another in a single
// transform. Moving within the same column, unknown columns and tasks missing
// from the source column leave the board unchanged.
func MoveTask(b Board, taskID, fromColumnID, toColumnID string) (Board, bool) {
	if fromColumnID == toColumnID {
		return b, false
	}
	from, ok := b.Columns[fromColumnID]
	if !ok {
		return b, false
	}
	to, ok := b.Columns[toColumnID]
	if !ok {
		return b, false
	}
	idx := from.indexOf(taskID)
	if idx < 0 {
		return b, false
	}
	task := from.Items[idx]

	toItems := make([]Task, len(to.Items), len(to.Items)+1)
	copy(toItems, to.Items)
	toItems = append(toItems, task)

	out := b.withColumns()
	out.Columns[fromColumnID] = Column{Name: from.Name, Items: without(from.Items, taskID)}
	out.Columns[toColumnID] = Column{Name: to.Name, Items: toItems}
	return out, true
}

// withColumns copies the column map so a reducer can replace entries without
// affecting the input board. Untouched columns share their item slices, which
// is safe because no reducer mutates a slice in place.
func (b Board) withColumns() Board {
	cols := make(map[string]Column, len(b.Columns))
	for id, col := range b.Columns {
		cols[id] = col
	}
	return Board{Columns: cols}
}

func without(items []Task, taskID string) []Task {
	out := make([]Task, 0, len(items))
	for _, t := range items {
		if t.ID != taskID {
			out = append(out, t)
		}
	}
	return out
}
