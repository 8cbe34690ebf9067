// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the per-request timeout used when no HTTP client is
// provided.
const DefaultTimeout = 2 * time.Minute

// StatusError is returned when an endpoint responds with an unexpected
// HTTP status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sparql: %s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("sparql: %s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

// Client is a SPARQL protocol client for a single repository endpoint.
// Queries are sent to the endpoint and updates to the endpoint joined
// with the update path.
type Client struct {
	endpoint   string
	updatePath string
	http       *http.Client
	log        *slog.Logger
}

// Option is a Client configuration option.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cli *Client) { cli.http = c }
}

// WithLogger sets the logger used to report failures.
func WithLogger(l *slog.Logger) Option {
	return func(cli *Client) { cli.log = l }
}

// WithUpdatePath sets the path appended to the endpoint for updates.
// The default is "/statements", the RDF4J repository statements path.
func WithUpdatePath(path string) Option {
	return func(cli *Client) { cli.updatePath = path }
}

// NewClient returns a new Client for the repository at endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		updatePath: "/statements",
		http:       &http.Client{Timeout: DefaultTimeout},
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UpdateEndpoint returns the update endpoint.
func (c *Client) UpdateEndpoint() string {
	return c.endpoint + c.updatePath
}

// NamespaceQuery returns a SELECT query for the distinct typed subjects
// whose IRI text contains ns, bound to ?s.
func NamespaceQuery(ns string) (string, error) {
	lit, err := Literal(ns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT DISTINCT ?s
WHERE {
  ?s a ?o . FILTER(CONTAINS(STR(?s), %s))
}
`, lit), nil
}

type results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]binding `json:"bindings"`
	} `json:"results"`
}

type binding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Select runs a query binding ?s and returns the bound values in result
// order. Failures are logged and result in a nil slice.
func (c *Client) Select(ctx context.Context, query string) []string {
	rows, err := c.Bindings(ctx, query)
	if err != nil {
		c.log.Error("select failed", "endpoint", c.endpoint, "err", err)
		return nil
	}
	var values []string
	for _, r := range rows {
		v, ok := r["s"]
		if !ok {
			continue
		}
		values = append(values, v)
	}
	return values
}

// Bindings runs a SELECT query and returns each result row as a map of
// variable name to bound value. Unbound variables are absent from a row.
func (c *Client) Bindings(ctx context.Context, query string) ([]map[string]string, error) {
	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "select", Code: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var res results
	err = json.NewDecoder(resp.Body).Decode(&res)
	if err != nil {
		return nil, fmt.Errorf("sparql: select: %w", err)
	}
	rows := make([]map[string]string, 0, len(res.Results.Bindings))
	for _, b := range res.Results.Bindings {
		row := make(map[string]string, len(b))
		for k, v := range b {
			row[k] = v.Value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Update sends the update text to the update endpoint. Only a 204 No
// Content response is treated as success.
func (c *Client) Update(ctx context.Context, update string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UpdateEndpoint(), strings.NewReader(update))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/sparql-update")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return &StatusError{Op: "update", Code: resp.StatusCode, Body: readBody(resp.Body)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// readBody returns a bounded prefix of an error response body.
func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

// Writer is an updater that writes update requests to an io.Writer
// instead of sending them.
type Writer struct {
	w io.Writer
	n int
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Update writes the update text to the underlying writer, preceded by a
// comment numbering the request.
func (w *Writer) Update(_ context.Context, update string) error {
	w.n++
	_, err := fmt.Fprintf(w.w, "# request %d\n%s\n", w.n, update)
	return err
}
