// Package remote is an HTTP client for the arbor server. It implements the
// same Store and Catalog interfaces as the local sqlite store, so an editor
// can point at either.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/persist"
	"mycelica/arbor/internal/server"
)

var (
	_ persist.Store   = (*Client)(nil)
	_ persist.Catalog = (*Client)(nil)
)

// StatusError is a non-2xx reply that is not a missing document.
type StatusError struct {
	Status int
	Code   string
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Msg)
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	ReadTries  uint // attempts for idempotent reads; 0 means 3
}

// Client talks to a server.Server.
type Client struct {
	base  string
	http  *http.Client
	tries uint
}

// New returns a client for the server at baseURL (e.g. http://host:7420).
func New(baseURL string, opts *Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", baseURL)
	}
	c := &Client{
		base:  strings.TrimRight(baseURL, "/") + "/v1",
		http:  &http.Client{Timeout: 15 * time.Second},
		tries: 3,
	}
	if opts != nil {
		if opts.HTTPClient != nil {
			c.http = opts.HTTPClient
		}
		if opts.ReadTries > 0 {
			c.tries = opts.ReadTries
		}
	}
	return c, nil
}

// structural lists the errors a 409 can carry.
var structural = []error{graph.ErrMoveRoot, graph.ErrDeleteRoot, graph.ErrReparentSelf, graph.ErrCycle}

// conflict recovers the structural error named in a 409 body.
func conflict(msg string) error {
	for _, e := range structural {
		if strings.Contains(msg, e.Error()) {
			return e
		}
	}
	return graph.ErrCycle
}

// do sends one request and decodes a JSON reply into out (if non-nil).
// 404 maps to graph.ErrNotFound and 409 to the structural error it names.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er server.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, graph.ErrNotFound)
		case http.StatusConflict:
			return fmt.Errorf("%s %s: %w", method, path, conflict(er.Error))
		}
		return &StatusError{Status: resp.StatusCode, Code: er.Code, Msg: er.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// get retries transient failures of an idempotent read with exponential
// backoff. Client errors (4xx) are not retried.
func (c *Client) get(ctx context.Context, path string, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		var se *StatusError
		if errors.Is(err, graph.ErrNotFound) || (errors.As(err, &se) && se.Status < 500) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(c.tries),
	)
	return err
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

func docPath(docID string) string { return "/documents/" + url.PathEscape(docID) }

// SaveNodes implements persist.Store.
func (c *Client) SaveNodes(ctx context.Context, docID string, nodes []graph.Node) error {
	if nodes == nil {
		nodes = []graph.Node{}
	}
	return c.do(ctx, http.MethodPut, docPath(docID)+"/nodes", nodes, nil)
}

// UpdateNode implements persist.Store.
func (c *Client) UpdateNode(ctx context.Context, docID, nodeID string, patch graph.NodePatch) error {
	return c.do(ctx, http.MethodPatch, docPath(docID)+"/nodes/"+url.PathEscape(nodeID), patch, nil)
}

// GetDocument implements persist.Store.
func (c *Client) GetDocument(ctx context.Context, docID, userID string) (*graph.Document, error) {
	var doc graph.Document
	if err := c.get(ctx, docPath(docID)+"?user="+url.QueryEscape(userID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetSharedDocument implements persist.Store.
func (c *Client) GetSharedDocument(ctx context.Context, docID string) (*graph.Document, error) {
	var doc graph.Document
	if err := c.get(ctx, docPath(docID)+"/shared", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateActiveEditor implements persist.Store.
func (c *Client) UpdateActiveEditor(ctx context.Context, e graph.ActiveEditor) error {
	return c.do(ctx, http.MethodPut, docPath(e.DocumentID)+"/editors/"+url.PathEscape(e.UserID), e, nil)
}

// GetActiveEditors implements persist.Store.
func (c *Client) GetActiveEditors(ctx context.Context, docID string) ([]graph.ActiveEditor, error) {
	var editors []graph.ActiveEditor
	if err := c.get(ctx, docPath(docID)+"/editors", &editors); err != nil {
		return nil, err
	}
	return editors, nil
}

// RemoveActiveEditor implements persist.Store.
func (c *Client) RemoveActiveEditor(ctx context.Context, docID, userID string) error {
	return c.do(ctx, http.MethodDelete, docPath(docID)+"/editors/"+url.PathEscape(userID), nil, nil)
}

// CreateDocument implements persist.Catalog. doc is updated with the
// server-assigned id and timestamps.
func (c *Client) CreateDocument(ctx context.Context, doc *graph.Document) error {
	return c.do(ctx, http.MethodPost, "/documents", doc, doc)
}

// ListDocuments implements persist.Catalog.
func (c *Client) ListDocuments(ctx context.Context, ownerID string) ([]graph.Document, error) {
	path := "/documents"
	if ownerID != "" {
		path += "?owner=" + url.QueryEscape(ownerID)
	}
	var docs []graph.Document
	if err := c.get(ctx, path, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
