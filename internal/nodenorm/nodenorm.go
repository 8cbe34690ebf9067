// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nodenorm implements a client for the node normalization service
// that resolves biomedical identifiers to their equivalent identifiers.
package nodenorm // import "github.com/obask/kgmapper/internal/nodenorm"

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is the public node normalization service.
const DefaultURL = "https://nodenormalization-sri.renci.org"

// MaxBatch is the largest number of CURIEs accepted in a single request.
const MaxBatch = 20000

// Response fields holding identifier records.
const (
	// ID holds the preferred identifier record.
	ID = "id"

	// EquivalentIdentifiers holds the list of all
	// equivalent identifier records.
	EquivalentIdentifiers = "equivalent_identifiers"
)

// Client is a node normalization client.
type Client struct {
	url  string
	http *http.Client
	log  *slog.Logger
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

// NewClient returns a client for the service at base.
func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		url:  strings.TrimSuffix(base, "/") + "/get_normalized_nodes",
		http: &http.Client{Timeout: 2 * time.Minute},
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type record struct {
	Identifier string `json:"identifier"`
}

// Normalize returns the identifiers found in the field of the service
// response for each of the provided CURIEs, keeping only identifiers that
// contain at least one of keywords. If keywords is empty all identifiers
// are kept. CURIEs that are unknown to the service or that have no
// matching identifier are absent from the returned map.
//
// A single request is made for all the CURIEs, so callers must respect
// MaxBatch. Failures are logged and result in an empty map.
func (c *Client) Normalize(ctx context.Context, curies []string, field string, keywords []string) map[string][]string {
	normalized := make(map[string][]string)
	if len(curies) == 0 {
		return normalized
	}

	body, err := json.Marshal(struct {
		CURIEs []string `json:"curies"`
	}{curies})
	if err != nil {
		c.log.Error("failed to encode normalization request", "err", err)
		return normalized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.log.Error("failed to create normalization request", "err", err)
		return normalized
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("normalization request failed", "curies", len(curies), "err", err)
		return normalized
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Error("error fetching normalized CURIEs", "status", resp.StatusCode, "curies", len(curies))
		return normalized
	}

	// Unknown CURIEs are present with a null value.
	var result map[string]map[string]json.RawMessage
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		c.log.Error("failed to decode normalization response", "err", err)
		return normalized
	}

	for _, curie := range curies {
		info, ok := result[curie]
		if !ok || info == nil {
			continue
		}
		data, ok := info[field]
		if !ok {
			continue
		}
		ids := identifiers(data)
		for _, id := range ids {
			if !matches(id, keywords) {
				continue
			}
			normalized[curie] = append(normalized[curie], id)
		}
	}
	return normalized
}

// identifiers returns the identifier strings held in data, which may be
// a single record or a list of records. Malformed data yields nothing.
func identifiers(data json.RawMessage) []string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '{':
		var r record
		if json.Unmarshal(data, &r) != nil || r.Identifier == "" {
			return nil
		}
		return []string{r.Identifier}
	case '[':
		var rs []record
		if json.Unmarshal(data, &rs) != nil {
			return nil
		}
		ids := make([]string, 0, len(rs))
		for _, r := range rs {
			if r.Identifier == "" {
				continue
			}
			ids = append(ids, r.Identifier)
		}
		return ids
	default:
		return nil
	}
}

func matches(id string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, k := range keywords {
		if strings.Contains(id, k) {
			return true
		}
	}
	return false
}
