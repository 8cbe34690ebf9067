// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/obask/kgmapper/internal/curate"
	"github.com/obask/kgmapper/internal/fetch"
)

func curateCommand(opts *options) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Build the dataset cell type configuration from curated spreadsheets",
		Long: `curate reads the CSV and Excel spreadsheets in the curated data
directory and writes the dataset cell type configuration in YAML.

Spreadsheets must have Content, h5ad link and Author Category Cell Type
Field Name columns. Rows with "cell types" content are grouped by their
h5ad link, giving configuration entries in the form:

  - CxG_link: https://datasets.cellxgene.cziscience.com/<id>.h5ad
    author_cell_type_list:
      - cell_type`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if input == "" {
				input = cfg.Curate.InputDir
			}
			if output == "" {
				output = cfg.Curate.Output
			}

			log.Println("[reading curated data]")
			entries, err := curate.ReadDir(input, opts.logger())
			if err != nil {
				return err
			}
			log.Printf("[writing %d dataset entries to %s]", len(entries), output)
			return curate.WriteFile(output, entries)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "specify the curated data directory")
	cmd.Flags().StringVar(&output, "output", "", "specify the YAML configuration output file")
	return cmd
}

func fetchCommand(opts *options) *cobra.Command {
	var (
		input string
		clean bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the datasets named in the cell type configuration",
		Long: `fetch downloads the AnnData dataset for each entry of the dataset
cell type configuration written by curate.

A dataset is not downloaded if its graph, <graph_dir>/<id>.owl, or its
dataset file, <dataset_dir>/<id>.h5ad, already exists. Downloads are
retried according to the configured retry policy. With --clean, the
dataset files of datasets whose graph exists are deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if input == "" {
				input = cfg.Curate.Output
			}
			entries, err := curate.Load(input)
			if err != nil {
				return err
			}

			f := &fetch.Fetcher{
				URL:        cfg.Fetch.URL,
				DatasetDir: cfg.Fetch.DatasetDir,
				GraphDir:   cfg.Fetch.GraphDir,
				Retry:      cfg.Fetch.Retry,
				Log:        opts.logger(),
			}
			seen := make(map[string]bool)
			var failed int
			for _, e := range entries {
				id := fetch.DatasetID(e.Link)
				if seen[id] {
					continue
				}
				seen[id] = true

				log.Printf("[fetching %s]", id)
				path, status, err := f.Fetch(cmd.Context(), id)
				if err != nil {
					if cmd.Context().Err() != nil {
						return err
					}
					log.Printf("failed to fetch %s: %v", id, err)
					failed++
					continue
				}
				log.Printf("%s: %s %s", id, status, path)
				if clean && status == fetch.Built {
					err = f.Delete(id)
					if err != nil {
						log.Printf("failed to delete %s: %v", path, err)
					}
				}
			}
			if failed != 0 {
				return fmt.Errorf("failed to fetch %d of %d datasets", failed, len(seen))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "specify the dataset cell type configuration")
	cmd.Flags().BoolVar(&clean, "clean", false, "delete datasets whose graph exists")
	return cmd
}

func graphsCommand(opts *options) *cobra.Command {
	var input, output, dir string
	cmd := &cobra.Command{
		Use:   "graphs",
		Short: "List the graph file URLs of the datasets in the cell type configuration",
		Long: `graphs writes a file URL for the graph of each entry of the dataset
cell type configuration, one per line, in the form:

  file:///<graph_dir>/<id>.owl

The list is written to standard output unless an output file is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if input == "" {
				input = cfg.Curate.Output
			}
			if dir == "" {
				dir = cfg.Fetch.GraphDir
			}
			entries, err := curate.Load(input)
			if err != nil {
				return err
			}
			urls, err := graphURLs(entries, dir)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			err = writeLines(w, urls)
			if err != nil {
				return err
			}
			if output != "" {
				log.Printf("[wrote %d graph URLs to %s]", len(urls), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "specify the dataset cell type configuration")
	cmd.Flags().StringVar(&output, "output", "", "specify the URL list output file")
	cmd.Flags().StringVar(&dir, "dir", "", "specify the graph directory")
	return cmd
}

// graphURLs returns the file URLs of the graphs for entries, rooted at
// the absolute path of dir. Entries without a dataset link are omitted.
func graphURLs(entries []curate.Entry, dir string) ([]string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, e := range entries {
		id := fetch.DatasetID(e.Link)
		if id == "" {
			continue
		}
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(dir, id+".owl"))}
		urls = append(urls, u.String())
	}
	return urls, nil
}

func writeLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		fmt.Fprintln(bw, l)
	}
	return bw.Flush()
}
