package domain

// Column ids of the fixed board layout.
const (
	ColumnTodo       = "todo"
	ColumnInProgress = "inProgress"
	ColumnDone       = "done"
)

// ColumnOrder returns the display order of the board columns.
func ColumnOrder() []string {
	return []string{ColumnTodo, ColumnInProgress, ColumnDone}
}

var columnNames = map[string]string{
	ColumnTodo:       "To Do",
	ColumnInProgress: "In Progress",
	ColumnDone:       "Done",
}

// Task represents a single card on the board.
type Task struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Column is a named, ordered list of tasks.
type Column struct {
	Name  string `json:"name"`
	Items []Task `json:"items"`
}

// Board maps column ids to columns. Values are treated as immutable: every
// reducer returns a fresh Board and never touches the slices of its input.
type Board struct {
	Columns map[string]Column `json:"columns"`
}

// Column returns the column with the given id.
func (b Board) Column(id string) (Column, bool) {
	col, ok := b.Columns[id]
	return col, ok
}

// Valid reports whether the board holds exactly the three known columns and
// every task id appears once.
func (b Board) Valid() bool {
	if len(b.Columns) != len(columnNames) {
		return false
	}
	seen := make(map[string]struct{}, b.TaskCount())
	for id := range columnNames {
		col, ok := b.Columns[id]
		if !ok {
			return false
		}
		for _, t := range col.Items {
			if _, dup := seen[t.ID]; dup {
				return false
			}
			seen[t.ID] = struct{}{}
		}
	}
	return true
}

// Find returns the id of the column holding taskID.
func (b Board) Find(taskID string) (string, bool) {
	for id, col := range b.Columns {
		if col.indexOf(taskID) >= 0 {
			return id, true
		}
	}
	return "", false
}

// TaskCount returns the number of tasks across all columns.
func (b Board) TaskCount() int {
	n := 0
	for _, col := range b.Columns {
		n += len(col.Items)
	}
	return n
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := Board{Columns: make(map[string]Column, len(b.Columns))}
	for id, col := range b.Columns {
		out.Columns[id] = col.clone()
	}
	return out
}

// Equal reports whether both boards hold the same columns with the same
// tasks in the same order. Nil and empty item lists compare equal.
func (b Board) Equal(o Board) bool {
	if len(b.Columns) != len(o.Columns) {
		return false
	}
	for id, col := range b.Columns {
		other, ok := o.Columns[id]
		if !ok || col.Name != other.Name || len(col.Items) != len(other.Items) {
			return false
		}
		for i := range col.Items {
			if col.Items[i] != other.Items[i] {
				return false
			}
		}
	}
	return true
}

func (c Column) clone() Column {
	items := make([]Task, len(c.Items))
	copy(items, c.Items)
	return Column{Name: c.Name, Items: items}
}

func (c Column) indexOf(taskID string) int {
	for i, t := range c.Items {
		if t.ID == taskID {
			return i
		}
	}
	return -1
}

// normalize replaces nil maps and item lists with empty ones so decoded
// documents never expose null columns.
func normalize(b Board) Board {
	if b.Columns == nil {
		b.Columns = map[string]Column{}
		return b
	}
	for id, col := range b.Columns {
		if col.Items == nil {
			col.Items = []Task{}
			b.Columns[id] = col
		}
	}
	return b
}
