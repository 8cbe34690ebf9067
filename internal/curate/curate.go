// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package curate builds the dataset cell type configuration from curated
// spreadsheet metadata.
package curate // import "github.com/obask/kgmapper/internal/curate"

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Spreadsheet column names.
const (
	ContentColumn  = "Content"
	LinkColumn     = "h5ad link"
	CellTypeColumn = "Author Category Cell Type Field Name"
)

// ErrUnsupported is returned for files that are not CSV or Excel
// spreadsheets, and for legacy binary workbooks that cannot be read.
var ErrUnsupported = errors.New("curate: unsupported file format")

// Entry is the cell type configuration of a single dataset.
type Entry struct {
	Link      string   `yaml:"CxG_link"`
	CellTypes []string `yaml:"author_cell_type_list"`
}

// Entries returns the configuration entries described by rows. The first
// row is the header. Rows whose content is cell types are grouped by their
// dataset link, and entries are returned in lexical order of link.
func Entries(rows [][]string) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range []string{ContentColumn, LinkColumn, CellTypeColumn} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("curate: missing column %q", name)
		}
	}
	cell := func(row []string, name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	groups := make(map[string][]string)
	for _, row := range rows[1:] {
		if strings.ToLower(cell(row, ContentColumn)) != "cell types" {
			continue
		}
		link := cell(row, LinkColumn)
		if link == "" {
			continue
		}
		groups[link] = append(groups[link], strings.TrimSpace(cell(row, CellTypeColumn)))
	}

	entries := make([]Entry, 0, len(groups))
	for link, types := range groups {
		entries = append(entries, Entry{Link: link, CellTypes: types})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Link < entries[j].Link })
	return entries, nil
}

// ReadFile returns the configuration entries held in the spreadsheet at
// path. CSV files and the first sheet of Office Open XML workbooks are
// read.
func ReadFile(path string) ([]Entry, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx", ".xls":
		rows, err = readExcel(path)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	entries, err := Entries(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	return entries, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(filepath.Clean(path))
	if errors.Is(err, excelize.ErrWorkbookFileFormat) {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupported, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("curate: failed to open %s: %w", path, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("curate: failed to get rows for sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// ReadDir returns the configuration entries of all the spreadsheets in
// dir, in lexical order of file name. Files with other formats are
// skipped.
func ReadDir(dir string, log *slog.Logger) ([]Entry, error) {
	if log == nil {
		log = slog.Default()
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var all []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		entries, err := ReadFile(filepath.Join(dir, f.Name()))
		if errors.Is(err, ErrUnsupported) {
			log.Warn("skipping file with unsupported format", "file", f.Name(), "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info("read curated data", "file", f.Name(), "datasets", len(entries))
		all = append(all, entries...)
	}
	return all, nil
}

// Write writes entries to w as a YAML sequence.
func Write(w io.Writer, entries []Entry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(entries)
	if err != nil {
		return err
	}
	return enc.Close()
}

// WriteFile writes entries to the file at path, creating its directory
// if needed.
func WriteFile(path string, entries []Entry) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = Write(f, entries)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load returns the entries held in the YAML configuration at path.
func Load(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	err = yaml.Unmarshal(b, &entries)
	if err != nil {
		return nil, fmt.Errorf("curate: %s: %w", path, err)
	}
	return entries, nil
}
