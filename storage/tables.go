package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// BoardUpdated is the message type enqueued after each table write.
const BoardUpdated = "board-updated"

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// TableStore keeps one board document per table entity. Writes optionally
// enqueue a change notification that watching subscribers consume to refresh
// ahead of the next poll.
type TableStore struct {
	table         tableClient
	events        queueClient
	logger        *log.Logger
	pollInterval  time.Duration
	queueInterval time.Duration
}

type boardEntity struct {
	aztables.Entity
	Data string `json:"Data"`
}

type boardUpdatedMessage struct {
	Type    string `json:"type"`
	AppID   string `json:"appId"`
	BoardID string `json:"boardId"`
}

// NewTableStore creates a TableStore from a storage connection string. An
// empty eventsQueue disables change notifications.
func NewTableStore(connStr, boardsTable, eventsQueue string, pollInterval time.Duration, logger *log.Logger) (*TableStore, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	var events queueClient
	if eventsQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    3,
					TryTimeout:    time.Second * 30,
					RetryDelay:    time.Second * 1,
					MaxRetryDelay: time.Second * 15,
					StatusCodes:   []int{408, 429, 500, 502, 503, 504},
				},
			},
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		events = q
	}
	return newTableStore(svc.NewClient(boardsTable), events, pollInterval, logger), nil
}

func newTableStore(table tableClient, events queueClient, pollInterval time.Duration, logger *log.Logger) *TableStore {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	queueInterval := 500 * time.Millisecond
	if pollInterval < queueInterval {
		queueInterval = pollInterval
	}
	return &TableStore{
		table:         table,
		events:        events,
		logger:        logger,
		pollInterval:  pollInterval,
		queueInterval: queueInterval,
	}
}

// Write replaces the board entity and announces the change.
func (s *TableStore) Write(ctx context.Context, path Path, board domain.Board) error {
	data, err := board.Encode()
	if err != nil {
		return err
	}
	ent := boardEntity{
		Entity: aztables.Entity{PartitionKey: path.AppID, RowKey: path.BoardID},
		Data:   string(data),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return err
	}
	if s.events != nil {
		msg, _ := json.Marshal(boardUpdatedMessage{Type: BoardUpdated, AppID: path.AppID, BoardID: path.BoardID})
		if _, err := s.events.EnqueueMessage(ctx, string(msg), nil); err != nil {
			s.logger.WithError(err).WithField("path", path.String()).Error("unable to enqueue board update")
		}
	}
	return nil
}

// Subscribe emits the current entity, then re-reads it whenever a change
// notification arrives or the poll interval elapses. Only changed ETags are
// emitted after the first event.
func (s *TableStore) Subscribe(ctx context.Context, path Path) (*Subscription, error) {
	first, etag, err := s.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewSubscription(ctx, func(ctx context.Context, emit EmitFunc) {
		if !emit(first) {
			return
		}
		poll := time.NewTicker(s.pollInterval)
		defer poll.Stop()
		var queueTick <-chan time.Time
		if s.events != nil {
			qt := time.NewTicker(s.queueInterval)
			defer qt.Stop()
			queueTick = qt.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
			case <-queueTick:
				if !s.drainNotifications(ctx, path) {
					continue
				}
			}
			ev, next, err := s.fetch(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !emit(Event{Err: err}) {
					return
				}
				continue
			}
			if next == etag {
				continue
			}
			etag = next
			if !emit(ev) {
				return
			}
		}
	}), nil
}

// drainNotifications consumes pending queue messages and reports whether any
// of them concerned path.
func (s *TableStore) drainNotifications(ctx context.Context, path Path) bool {
	relevant := false
	for {
		resp, err := s.events.DequeueMessage(ctx, nil)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Warn("unable to read board update queue")
			}
			return relevant
		}
		if len(resp.Messages) == 0 {
			return relevant
		}
		msg := resp.Messages[0]
		if msg.MessageText != nil {
			var upd boardUpdatedMessage
			if err := json.Unmarshal([]byte(*msg.MessageText), &upd); err == nil &&
				upd.Type == BoardUpdated && upd.AppID == path.AppID && upd.BoardID == path.BoardID {
				relevant = true
			}
		}
		if msg.MessageID != nil && msg.PopReceipt != nil {
			if _, err := s.events.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
				s.logger.WithError(err).Warn("unable to delete board update message")
			}
		}
	}
}

func (s *TableStore) fetch(ctx context.Context, path Path) (Event, azcore.ETag, error) {
	resp, err := s.table.GetEntity(ctx, path.AppID, path.BoardID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return Event{Snapshot: Snapshot{Exists: false}}, "", nil
		}
		return Event{}, "", err
	}
	var ent boardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return Event{Err: err}, resp.ETag, nil
	}
	board, err := domain.Decode([]byte(ent.Data))
	if err != nil {
		return Event{Err: err}, resp.ETag, nil
	}
	return Event{Snapshot: Snapshot{Board: board, Exists: true}}, resp.ETag, nil
}
