package domain

import "github.com/bytedance/sonic"

// Command types accepted by the board.
const (
	AddTaskCommand    = "add-task"
	DeleteTaskCommand = "delete-task"
	MoveTaskCommand   = "move-task"
)

// Command represents a user intent sent by the rendering layer.
type Command struct {
	Type string                 `json:"type"`
	Data sonic.NoCopyRawMessage `json:"data,omitempty"`
}

type AddTaskData struct {
	Content string `json:"content"`
}

type DeleteTaskData struct {
	ColumnID string `json:"columnId"`
	TaskID   string `json:"taskId"`
}

type MoveTaskData struct {
	TaskID string `json:"taskId"`
	From   string `json:"from"`
	To     string `json:"to"`
}
