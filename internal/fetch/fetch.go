// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch downloads AnnData datasets named by CELLxGENE links.
package fetch // import "github.com/obask/kgmapper/internal/fetch"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/obask/kgmapper/internal/retry"
)

// DatasetID returns the dataset ID named by a CELLxGENE dataset link. The
// ID is the last element of the link path with any extension removed.
func DatasetID(link string) string {
	link = strings.TrimSuffix(link, "/")
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	base := path.Base(link)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// Status is the outcome of a Fetch.
type Status int

const (
	// Downloaded indicates the dataset was downloaded.
	Downloaded Status = iota

	// Cached indicates the dataset file already existed.
	Cached

	// Built indicates the graph for the dataset
	// already existed, so no dataset is needed.
	Built
)

func (s Status) String() string {
	switch s {
	case Downloaded:
		return "downloaded"
	case Cached:
		return "cached"
	case Built:
		return "built"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusError is returned for unsuccessful download responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Fetcher downloads datasets into a directory.
type Fetcher struct {
	// URL is a format string taking the dataset ID
	// and giving its download URL.
	URL string

	// DatasetDir is the destination of downloads.
	// GraphDir holds the OWL graphs built from
	// datasets, named <id>.owl.
	DatasetDir string
	GraphDir   string

	// Retry is the download retry policy.
	Retry retry.Config

	// HTTP is the client used for downloads. If
	// nil, a client with no timeout is used since
	// datasets may be large.
	HTTP *http.Client

	Log *slog.Logger
}

// DatasetPath returns the path of the dataset file for id.
func (f *Fetcher) DatasetPath(id string) string {
	return filepath.Join(f.DatasetDir, id+".h5ad")
}

// GraphPath returns the path of the graph file for id.
func (f *Fetcher) GraphPath(id string) string {
	return filepath.Join(f.GraphDir, id+".owl")
}

// Fetch ensures the dataset id is available, downloading it if neither
// its graph nor its dataset file exist. It returns the dataset path and
// how it was made available.
func (f *Fetcher) Fetch(ctx context.Context, id string) (string, Status, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", 0, fmt.Errorf("fetch: invalid dataset id %q", id)
	}
	log := f.log().With("dataset", id)
	dst := f.DatasetPath(id)
	if f.GraphDir != "" && exists(f.GraphPath(id)) {
		log.Info("graph already exists, skipping download", "graph", f.GraphPath(id))
		return dst, Built, nil
	}
	if exists(dst) {
		log.Info("dataset already exists, skipping download", "path", dst)
		return dst, Cached, nil
	}

	err := os.MkdirAll(f.DatasetDir, 0o755)
	if err != nil {
		return "", 0, err
	}
	url := fmt.Sprintf(f.URL, id)
	start := time.Now()
	err = retry.Do(ctx, f.Retry, func(attempt int) error {
		err := f.download(ctx, url, dst)
		if err != nil {
			log.Warn("download failed", "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return "", 0, err
	}
	log.Info("download complete", "path", dst, "duration", time.Since(start))
	return dst, Downloaded, nil
}

// download writes the body at url to a temporary file and renames it to
// dst on success.
func (f *Fetcher) download(ctx context.Context, url, dst string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	cli := f.HTTP
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := &StatusError{URL: url, Code: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return retry.Permanent(err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	_, err = io.Copy(tmp, resp.Body)
	if err != nil {
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Delete removes the dataset file for id. It is not an error for the
// file to be absent.
func (f *Fetcher) Delete(id string) error {
	err := os.Remove(f.DatasetPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil {
		f.log().Info("deleted dataset", "dataset", id)
	}
	return err
}

func (f *Fetcher) log() *slog.Logger {
	if f.Log == nil {
		return slog.Default()
	}
	return f.Log
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
