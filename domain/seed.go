package domain

// InitialBoard returns the board written to the remote store when no board
// document exists yet: the three columns, all empty.
func InitialBoard() Board {
	b := Board{Columns: make(map[string]Column, len(columnNames))}
	for _, id := range ColumnOrder() {
		b.Columns[id] = Column{Name: columnNames[id], Items: []Task{}}
	}
	return b
}

var offlineItems = map[string][]Task{
	ColumnTodo: {
		{ID: "offline-todo-1", Content: "Could not reach the board server"},
		{ID: "offline-todo-2", Content: "Changes made now stay on this device"},
	},
	ColumnInProgress: {
		{ID: "offline-progress-1", Content: "Working offline until the app restarts"},
	},
	ColumnDone: {
		{ID: "offline-done-1", Content: "Offline board ready"},
	},
}

// OfflineBoard returns the placeholder board used when the remote store is
// unreachable. It is never written anywhere.
func OfflineBoard() Board {
	b := Board{Columns: make(map[string]Column, len(columnNames))}
	for _, id := range ColumnOrder() {
		items := make([]Task, len(offlineItems[id]))
		copy(items, offlineItems[id])
		b.Columns[id] = Column{Name: columnNames[id], Items: items}
	}
	return b
}
