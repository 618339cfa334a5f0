// Package config loads and validates a workdir's leech.json (spec §6),
// following the same viper-backed, defaults-then-read pattern the teacher
// repository uses for its own config.yaml in internal/config.Initialize,
// adapted from a global singleton to a per-workdir value since a leech
// invocation only ever has one configuration in scope.
package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"

	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/table"
)

// AdapterConfig names one endpoint of a table: which adapter implementation
// to use (Callbacks, an adapter-id looked up in the adapter registry) and
// the connection details it needs (spec §6).
type AdapterConfig struct {
	Params    string `mapstructure:"params"`
	Schema    string `mapstructure:"schema"`
	TableName string `mapstructure:"table_name"`
	Callbacks string `mapstructure:"callbacks"`
}

// TableConfig is one entry of the "tables" map in leech.json.
type TableConfig struct {
	PrimaryFields    []string      `mapstructure:"primary_fields"`
	SubsidiaryFields []string      `mapstructure:"subsidiary_fields"`
	MergeBlocks      bool          `mapstructure:"merge_blocks"`
	Source           AdapterConfig `mapstructure:"source"`
	Destination      AdapterConfig `mapstructure:"destination"`
}

// Schema builds the table.Schema this table's config describes.
func (tc TableConfig) Schema() (table.Schema, error) {
	return table.NewSchema(tc.PrimaryFields, tc.SubsidiaryFields)
}

// Config is the parsed and validated contents of workdir/leech.json.
type Config struct {
	Version     string `mapstructure:"version"`
	PrettyPrint bool   `mapstructure:"pretty_print"`
	AutoPurge   bool   `mapstructure:"auto_purge"`
	// ChainLength is nil when absent from the file ("chains are unbounded",
	// spec §6); purge is a no-op in that case.
	ChainLength *int                          `mapstructure:"chain_length"`
	Tables      map[table.TableId]TableConfig `mapstructure:"tables"`
}

// Load reads and validates workdir/leech.json. Defaults for pretty_print and
// auto_purge are seeded before the file is read, mirroring the teacher's
// v.SetDefault(...)-then-ReadInConfig sequencing.
func Load(workdir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(filepath.Join(workdir, "leech.json"))

	v.SetDefault("pretty_print", false)
	v.SetDefault("auto_purge", false)
	v.SetDefault("version", "0.1.0")

	if err := v.ReadInConfig(); err != nil {
		return nil, leecherr.New(leecherr.KindConfigInvalid, "config.load", fmt.Errorf("reading leech.json: %w", err))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, leecherr.New(leecherr.KindConfigInvalid, "config.load", fmt.Errorf("decoding leech.json: %w", err))
	}
	for id, tc := range cfg.Tables {
		if tc.MergeBlocks {
			continue
		}
		// mapstructure leaves MergeBlocks false both when the key is absent
		// and when it is explicitly false; default to true (spec §6) unless
		// the raw settings say otherwise.
		key := fmt.Sprintf("tables.%s.merge_blocks", id)
		if !v.IsSet(key) {
			tc.MergeBlocks = true
			cfg.Tables[id] = tc
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, leecherr.New(leecherr.KindConfigInvalid, "config.load", err)
	}
	return &cfg, nil
}

// Validate checks the structural invariants leech.json must satisfy beyond
// what Unmarshal alone enforces: well-formed TableIds, schemas that parse,
// and an adapter id named on both sides of every configured table.
func (c *Config) Validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("config: no tables configured")
	}
	ids := make([]string, 0, len(c.Tables))
	for id := range c.Tables {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, idStr := range ids {
		id := table.TableId(idStr)
		if !id.Valid() {
			return fmt.Errorf("config: table id %q must be exactly three uppercase letters", id)
		}
		tc := c.Tables[id]
		if _, err := tc.Schema(); err != nil {
			return fmt.Errorf("config: table %s: %w", id, err)
		}
		if tc.Source.Callbacks == "" {
			return fmt.Errorf("config: table %s: source.callbacks is required", id)
		}
		if tc.Destination.Callbacks == "" {
			return fmt.Errorf("config: table %s: destination.callbacks is required", id)
		}
	}
	if c.ChainLength != nil && *c.ChainLength < 1 {
		return fmt.Errorf("config: chain_length must be at least 1 when set")
	}
	return nil
}

// TableIDs returns every configured TableId in stable lexicographic order.
func (c *Config) TableIDs() []table.TableId {
	ids := make([]table.TableId, 0, len(c.Tables))
	for id := range c.Tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Schemas returns every configured table's schema, keyed by TableId.
func (c *Config) Schemas() (map[table.TableId]table.Schema, error) {
	out := make(map[table.TableId]table.Schema, len(c.Tables))
	for id, tc := range c.Tables {
		s, err := tc.Schema()
		if err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}
