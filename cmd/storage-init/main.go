package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	boardsTable := os.Getenv("BOARDS_TABLE")
	if boardsTable == "" {
		boardsTable = "boards"
	}

	ctx := context.Background()

	if err := createTable(ctx, connStr, boardsTable); err != nil {
		log.Fatalf("create table %s: %v", boardsTable, err)
	}
	log.WithField("table", boardsTable).Info("boards table ready")

	if queue := os.Getenv("BOARD_EVENTS_QUEUE"); queue != "" {
		if err := createQueue(ctx, connStr, queue); err != nil {
			log.Fatalf("create queue %s: %v", queue, err)
		}
		log.WithField("queue", queue).Info("board events queue ready")
	}

	log.Info("storage init complete")
}

func createTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(name).CreateTable(ctx, nil)
	if err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if err != nil && !alreadyExists(err, "QueueAlreadyExists") {
		return err
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
