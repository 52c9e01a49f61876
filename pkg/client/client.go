// Package client is a thin wrapper around the lshann HTTP API.
//
// All methods return *Error when the server answers with a non-successful
// status code.
//
//	c := client.New("http://localhost:8080")
//	ok, err := c.HealthCheck(ctx)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"lshann/internal/server"
)

type (
	CreateIndexRequest = server.CreateIndexRequest
	SearchRequest      = server.SearchRequest
	NeighborsRequest   = server.NeighborsRequest
	SearchResponse     = server.SearchResponse
	IndexResponse      = server.IndexResponse
)

type Client struct {
	BaseURL string
	Client  *http.Client
}

// Error represents an error returned by the server.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lshann: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends a request and decodes the JSON response into out when out is
// not nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func indexPath(name string) string {
	return "/v1/indexes/" + url.PathEscape(name)
}

// HealthCheck returns true if the server is healthy.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	var result map[string]any
	if err := c.do(ctx, http.MethodGet, "/", nil, &result); err != nil {
		return false, err
	}
	return result["status"] == "ok", nil
}

func (c *Client) CreateIndex(ctx context.Context, req CreateIndexRequest) (*IndexResponse, error) {
	var out IndexResponse
	if err := c.do(ctx, http.MethodPost, "/v1/indexes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetIndex(ctx context.Context, name string) (*IndexResponse, error) {
	var out IndexResponse
	if err := c.do(ctx, http.MethodGet, indexPath(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListIndexes(ctx context.Context) ([]IndexResponse, error) {
	var out server.ListIndexesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/indexes", nil, &out); err != nil {
		return nil, err
	}
	return out.Indexes, nil
}

func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, indexPath(name), nil, nil)
}

// SaveIndex asks the server to write the index snapshot now.
func (c *Client) SaveIndex(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, indexPath(name)+"/save", nil, nil)
}

// Search returns the neighbors of every query, in query order.
func (c *Client) Search(ctx context.Context, name string, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.do(ctx, http.MethodPost, indexPath(name)+"/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Neighbors searches the reference set of an index against itself.
func (c *Client) Neighbors(ctx context.Context, name string, req NeighborsRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.do(ctx, http.MethodPost, indexPath(name)+"/neighbors", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
