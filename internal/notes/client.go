package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client calls the annotation backend's JSON API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the backend at baseURL. httpClient may
// be nil, in which case a client with a 15-second timeout is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: trimTrailingSlash(baseURL),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// ListRange fetches the rows for one user, translation, and book over an
// inclusive chapter range.
func (c *Client) ListRange(ctx context.Context, userID, translation, book string, fromChapter, toChapter int) ([]RemoteNote, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("translation", translation)
	q.Set("book", book)
	q.Set("chapter_from", strconv.Itoa(fromChapter))
	q.Set("chapter_to", strconv.Itoa(toChapter))

	var out []RemoteNote
	if err := c.do(ctx, http.MethodGet, "/notes?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list notes %s %s %d-%d: %w", translation, book, fromChapter, toChapter, err)
	}
	return out, nil
}

// ListAll fetches every row for one user across all translations.
func (c *Client) ListAll(ctx context.Context, userID string) ([]RemoteNote, error) {
	q := url.Values{}
	q.Set("user_id", userID)

	var out []RemoteNote
	if err := c.do(ctx, http.MethodGet, "/notes?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list all notes: %w", err)
	}
	return out, nil
}

// Create inserts a row and returns it with the backend-assigned id and
// timestamps.
func (c *Client) Create(ctx context.Context, n RemoteNote) (RemoteNote, error) {
	n.ID = ""
	var out RemoteNote
	if err := c.do(ctx, http.MethodPost, "/notes", n, &out); err != nil {
		return RemoteNote{}, fmt.Errorf("create note: %w", err)
	}
	return out, nil
}

// Update rewrites a row in place and returns the updated row.
func (c *Client) Update(ctx context.Context, n RemoteNote) (RemoteNote, error) {
	if n.ID == "" {
		return RemoteNote{}, fmt.Errorf("update note: missing id")
	}
	var out RemoteNote
	if err := c.do(ctx, http.MethodPut, "/notes/"+url.PathEscape(n.ID), n, &out); err != nil {
		return RemoteNote{}, fmt.Errorf("update note %s: %w", n.ID, err)
	}
	return out, nil
}

// Delete removes a row. Deleting an absent row is not an error; the
// backend answers 404 and the caller's intent is already satisfied.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/notes/"+url.PathEscape(id), nil, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	return nil
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(payload))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
