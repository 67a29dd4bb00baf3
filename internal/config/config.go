// Package config loads the settings of a multicell process from an
// optional HCL file and the environment. Environment variables win.
//
//	local_cellid   = 2
//	dir            = "/var/lib/multicell"
//	cluster_name   = "west"
//	membership_url = "http://membership:8080"
//
// A missing local_cellid (and MULTICELL_CELLID) selects the degraded,
// non-multi-cell mode.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	EnvConfig         = "MULTICELL_CONFIG"
	EnvCellID         = "MULTICELL_CELLID"
	EnvDir            = "MULTICELL_DIR"
	EnvFile           = "MULTICELL_FILE"
	EnvCluster        = "MULTICELL_CLUSTER"
	EnvMembershipURL  = "MULTICELL_MEMBERSHIP_URL"
	EnvJournal        = "MULTICELL_JOURNAL"
	EnvAddr           = "MULTICELL_ADDR"
	EnvHealthInterval = "MULTICELL_HEALTH_INTERVAL"
)

// ErrInvalid is wrapped by every Error.
var ErrInvalid = errors.New("invalid configuration")

// Error reports a setting that could not be used.
type Error struct {
	Key   string
	Value string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s=%q: %v", e.Key, e.Value, e.Err)
	}
	return fmt.Sprintf("config %s=%q: %v", e.Key, e.Value, ErrInvalid)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalid, e.Err}
	}
	return []error{ErrInvalid}
}

// Config holds the settings of one process.
type Config struct {
	// LocalCellID is nil when this is not a multi-cell deployment.
	LocalCellID *int `hcl:"local_cellid,optional"`

	Dir           string `hcl:"dir,optional"`
	File          string `hcl:"file,optional"`
	ClusterName   string `hcl:"cluster_name,optional"`
	MembershipURL string `hcl:"membership_url,optional"`
	Journal       string `hcl:"journal,optional"`
	Addr          string `hcl:"listen_addr,optional"`

	HealthIntervalRaw string        `hcl:"health_interval,optional"`
	HealthInterval    time.Duration
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Config {
	return &Config{
		Dir:               "/var/lib/multicell",
		File:              "silo_info.xml",
		Addr:              ":8090",
		HealthIntervalRaw: "5s",
	}
}

// Load reads path, if not empty, then applies the environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads the file named by MULTICELL_CONFIG, if any, then applies
// the environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfig))
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvCellID)); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Key: EnvCellID, Value: v, Err: err}
		}
		c.LocalCellID = &id
	}
	c.Dir = getenv(EnvDir, c.Dir)
	c.File = getenv(EnvFile, c.File)
	c.ClusterName = getenv(EnvCluster, c.ClusterName)
	c.MembershipURL = getenv(EnvMembershipURL, c.MembershipURL)
	c.Journal = getenv(EnvJournal, c.Journal)
	c.Addr = getenv(EnvAddr, c.Addr)
	c.HealthIntervalRaw = getenv(EnvHealthInterval, c.HealthIntervalRaw)
	return nil
}

func (c *Config) validate() error {
	if c.LocalCellID != nil && *c.LocalCellID < 0 {
		return &Error{Key: "local_cellid", Value: strconv.Itoa(*c.LocalCellID)}
	}
	if c.Dir == "" {
		return &Error{Key: "dir"}
	}
	if c.File == "" || c.File != filepath.Base(c.File) {
		return &Error{Key: "file", Value: c.File}
	}
	d, err := time.ParseDuration(c.HealthIntervalRaw)
	if err != nil {
		return &Error{Key: "health_interval", Value: c.HealthIntervalRaw, Err: err}
	}
	if d <= 0 {
		return &Error{Key: "health_interval", Value: c.HealthIntervalRaw}
	}
	c.HealthInterval = d
	return nil
}

// Multicell reports whether a local cellid is configured.
func (c *Config) Multicell() bool {
	return c.LocalCellID != nil
}

// JournalPath returns the journal database path, relative paths resolved
// against Dir. Empty means no journal.
func (c *Config) JournalPath() string {
	if c.Journal == "" || filepath.IsAbs(c.Journal) {
		return c.Journal
	}
	return filepath.Join(c.Dir, c.Journal)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
