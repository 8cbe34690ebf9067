// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the configuration of kgmapper commands.
package config // import "github.com/obask/kgmapper/internal/config"

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obask/kgmapper/internal/curie"
	"github.com/obask/kgmapper/internal/nodenorm"
	"github.com/obask/kgmapper/internal/retry"
	"github.com/obask/kgmapper/internal/sparql"
)

// Environment variables overriding configured values.
const (
	EnvEndpoint   = "ENDPOINT_URL"
	EnvNormalizer = "NODE_NORMALIZATION_URL"
	EnvUpdateSize = "UPDATE_BATCH_SIZE"
)

// Default values.
const (
	DefaultEndpoint           = "http://triplestore:8080/rdf4j-server/repositories/obask"
	DefaultUpdatePath         = "/statements"
	DefaultNormalizer         = nodenorm.DefaultURL
	DefaultUbergraph          = "https://ubergraph.apps.renci.org/sparql"
	DefaultTimeout            = 2 * time.Minute
	DefaultNormalizeBatchSize = nodenorm.MaxBatch
	DefaultUpdateBatchSize    = 1000
	DefaultXrefPredicate      = sparql.HasDbXref
	DefaultDatasetURL         = "https://datasets.cellxgene.cziscience.com/%s.h5ad"
)

// Config is the kgmapper configuration.
type Config struct {
	// Endpoint is the triplestore repository URL
	// used for SELECT queries. Updates are sent to
	// Endpoint+UpdatePath.
	Endpoint   string `yaml:"endpoint"`
	UpdatePath string `yaml:"update_path"`

	// Normalizer is the base URL of the node
	// normalization service.
	Normalizer string `yaml:"normalizer"`

	// Ubergraph is the SPARQL endpoint queried for
	// PR cross-references when no PR OWL file is
	// provided.
	Ubergraph string `yaml:"ubergraph"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`

	NormalizeBatchSize int `yaml:"normalize_batch_size"`
	NormalizeWorkers   int `yaml:"normalize_workers"`
	UpdateBatchSize    int `yaml:"update_batch_size"`

	// XrefPredicate is the IRI of the predicate
	// recording the provenance of rewritten
	// identifiers.
	XrefPredicate string `yaml:"xref_predicate"`

	// Strict aborts a run on the first failed
	// update request.
	Strict bool `yaml:"strict"`

	// DryRun writes update requests to standard
	// output instead of sending them.
	DryRun bool `yaml:"dry_run"`

	// Namespaces replaces the default CURIE
	// namespace registry when not empty.
	Namespaces []curie.Namespace `yaml:"namespaces"`

	PR     PR     `yaml:"pr"`
	Fetch  Fetch  `yaml:"fetch"`
	Curate Curate `yaml:"curate"`
}

// PR is the PR swap configuration.
type PR struct {
	// OWL is the path to a local PR OWL file.
	// If empty, Ubergraph is queried.
	OWL string `yaml:"owl"`

	// Taxa restricts the classes taken from
	// the OWL file to those only in one of the
	// listed NCBITaxon CURIEs.
	Taxa []string `yaml:"taxa"`
}

// Fetch is the dataset download configuration.
type Fetch struct {
	// URL is a format string taking the dataset
	// ID to give the download URL.
	URL string `yaml:"url"`

	DatasetDir string `yaml:"dataset_dir"`
	GraphDir   string `yaml:"graph_dir"`

	Retry retry.Config `yaml:"retry"`
}

// Curate is the curation configuration.
type Curate struct {
	InputDir string `yaml:"input_dir"`
	Output   string `yaml:"output"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Endpoint:           DefaultEndpoint,
		UpdatePath:         DefaultUpdatePath,
		Normalizer:         DefaultNormalizer,
		Ubergraph:          DefaultUbergraph,
		Timeout:            DefaultTimeout,
		NormalizeBatchSize: DefaultNormalizeBatchSize,
		NormalizeWorkers:   1,
		UpdateBatchSize:    DefaultUpdateBatchSize,
		XrefPredicate:      DefaultXrefPredicate,
		PR: PR{
			Taxa: []string{"NCBITaxon:9606", "NCBITaxon:10090"},
		},
		Fetch: Fetch{
			URL:        DefaultDatasetURL,
			DatasetDir: "dataset",
			GraphDir:   "graph",
			Retry:      retry.Default,
		},
		Curate: Curate{
			InputDir: "curated_data",
			Output:   "config/cxg_author_cell_type.yaml",
		},
	}
}

// Load returns the default configuration overlaid with the YAML file at
// path, if path is not empty, and then with values from the environment
// obtained through getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		err = yaml.Unmarshal(b, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := getenv(EnvNormalizer); v != "" {
		cfg.Normalizer = v
	}
	if v := getenv(EnvUpdateSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid %s: %w", EnvUpdateSize, err)
		}
		cfg.UpdateBatchSize = n
	}
	return cfg, cfg.Validate()
}

// Registry returns the CURIE registry described by the configuration.
func (c Config) Registry() (*curie.Registry, error) {
	if len(c.Namespaces) == 0 {
		return curie.Default(), nil
	}
	return curie.NewRegistry(c.Namespaces...)
}

// Validate returns an error describing the first invalid value in c.
func (c Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("config: no endpoint")
	case c.Normalizer == "":
		return errors.New("config: no normalizer")
	case c.Timeout <= 0:
		return fmt.Errorf("config: invalid timeout: %v", c.Timeout)
	case c.NormalizeBatchSize <= 0:
		return fmt.Errorf("config: invalid normalize batch size: %d", c.NormalizeBatchSize)
	case c.NormalizeBatchSize > nodenorm.MaxBatch:
		return fmt.Errorf("config: normalize batch size %d exceeds service limit %d", c.NormalizeBatchSize, nodenorm.MaxBatch)
	case c.NormalizeWorkers <= 0:
		return fmt.Errorf("config: invalid normalize workers: %d", c.NormalizeWorkers)
	case c.UpdateBatchSize <= 0:
		return fmt.Errorf("config: invalid update batch size: %d", c.UpdateBatchSize)
	case c.XrefPredicate == "":
		return errors.New("config: no xref predicate")
	case strings.Count(c.Fetch.URL, "%s") != 1 || strings.Contains(fmt.Sprintf(c.Fetch.URL, "id"), "%!"):
		return fmt.Errorf("config: dataset URL must hold a single %%s verb: %q", c.Fetch.URL)
	}
	_, err := c.Registry()
	return err
}
