// Command sse-load holds many /stream connections open against a running
// board-sync and adds tasks at a fixed rate, then reports how many board
// frames the clients received.
package main

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

type counters struct {
	frames   atomic.Uint64
	attempts atomic.Uint64
	failures atomic.Uint64
	edits    atomic.Uint64
}

func main() {
	baseURL := strings.TrimSuffix(envString("BOARD_SYNC_URL", "http://localhost:8080"), "/")
	conns := envInt("SSE_CONNECTIONS", 200)
	duration := time.Duration(envInt("DURATION_SEC", 60)) * time.Second
	editEvery := time.Duration(envInt("EDIT_INTERVAL_MS", 500)) * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var c counters
	client := &http.Client{}
	var wg sync.WaitGroup
	wg.Add(conns)
	for range conns {
		go func() {
			defer wg.Done()
			listen(ctx, client, baseURL+"/stream", &c)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		edit(ctx, client, baseURL+"/api/tasks", editEvery, &c)
	}()
	wg.Wait()

	attempts, failures := c.attempts.Load(), c.failures.Load()
	failureRate := 0.0
	if attempts > 0 {
		failureRate = float64(failures) / float64(attempts)
	}
	entry := log.WithFields(log.Fields{
		"connections":         conns,
		"duration_sec":        int(duration.Seconds()),
		"frames_received":     c.frames.Load(),
		"edits_sent":          c.edits.Load(),
		"connection_failures": failures,
	})
	if c.frames.Load() == 0 || failureRate > 0.01 {
		entry.Error("sse load failed")
		os.Exit(1)
	}
	entry.Info("sse load complete")
}

// listen keeps one stream open until ctx ends, reconnecting with backoff.
func listen(ctx context.Context, client *http.Client, url string, c *counters) {
	backoff := time.Second
	retry := func() bool {
		c.failures.Add(1)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 5*time.Second)
		return true
	}
	for ctx.Err() == nil {
		c.attempts.Add(1)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			log.WithError(err).Fatal("build stream request")
		}
		resp, err := client.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			if resp != nil {
				resp.Body.Close()
			}
			if !retry() {
				return
			}
			continue
		}
		backoff = time.Second
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if strings.HasPrefix(scanner.Text(), "data:") {
				c.frames.Add(1)
			}
		}
		resp.Body.Close()
		if ctx.Err() != nil || !retry() {
			return
		}
	}
}

// edit adds one task per tick so every stream has changes to deliver.
func edit(ctx context.Context, client *http.Client, url string, every time.Duration, c *counters) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		body, err := sonic.Marshal(domain.AddTaskData{Content: "load task " + strconv.Itoa(n)})
		if err != nil {
			log.WithError(err).Fatal("encode task")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			log.WithError(err).Fatal("build task request")
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("add task")
			}
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusAccepted {
			c.edits.Add(1)
		}
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
