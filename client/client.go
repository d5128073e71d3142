// Package client talks to a board-sync server over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"board-sync/api"
	"board-sync/domain"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// Board fetches the current view.
func (c *Client) Board(ctx context.Context) (api.View, error) {
	return c.do(ctx, http.MethodGet, "/api/board", nil)
}

// AddTask adds a task to the todo column.
func (c *Client) AddTask(ctx context.Context, content string) (api.View, error) {
	return c.do(ctx, http.MethodPost, "/api/tasks", domain.AddTaskData{Content: content})
}

// DeleteTask removes a task from a column.
func (c *Client) DeleteTask(ctx context.Context, columnID, taskID string) (api.View, error) {
	return c.do(ctx, http.MethodDelete, "/api/columns/"+url.PathEscape(columnID)+"/tasks/"+url.PathEscape(taskID), nil)
}

// MoveTask moves a task between columns.
func (c *Client) MoveTask(ctx context.Context, taskID, from, to string) (api.View, error) {
	body := struct {
		From string `json:"from"`
		To   string `json:"to"`
	}{from, to}
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/move", body)
}

// Watch calls fn with every view the server streams until ctx ends, the
// stream closes, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(api.View) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(req, resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		var v api.View
		if err := sonic.UnmarshalString(strings.TrimSpace(payload), &v); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body any) (api.View, error) {
	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return api.View{}, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return api.View{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return api.View{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return api.View{}, statusError(req, resp)
	}
	var v api.View
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(&v); err != nil {
		return api.View{}, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}

func statusError(req *http.Request, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
}
