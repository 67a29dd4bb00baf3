// Package app assembles the topology service of a process from its
// configuration.
package app

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/cluster"
	"github.com/dreamware/multicell/internal/config"
	"github.com/dreamware/multicell/internal/descriptor"
	"github.com/dreamware/multicell/internal/journal"
	"github.com/dreamware/multicell/internal/membership"
	"github.com/dreamware/multicell/internal/storage"
	"github.com/dreamware/multicell/internal/topology"
)

// ErrDescriptorExists is returned by Init when the cell already has one.
var ErrDescriptorExists = errors.New("descriptor already exists")

// App is the set of components one process works with.
// Store and Journal are nil when not configured.
type App struct {
	Config  *config.Config
	Store   *storage.FileStore
	Journal *journal.Journal
	Service topology.Service
}

// Open builds the topology service described by cfg. name tags logs and
// metrics.
func Open(cfg *config.Config, name string) (*App, error) {
	a := &App{Config: cfg}
	if !cfg.Multicell() {
		log.Printf("[%s] no local cellid configured, running as a single-cell deployment", name)
		svc, err := topology.New(topology.Options{Name: name})
		if err != nil {
			return nil, err
		}
		a.Service = svc
		return a, nil
	}

	a.Store = storage.NewDirStore(cfg.Dir, cfg.File)
	if path := cfg.JournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return nil, err
		}
		a.Journal = j
	}

	svc, err := topology.New(topology.Options{
		LocalCellID: cfg.LocalCellID,
		Store:       a.Store,
		Committer:   a.committer(),
		ClusterName: cfg.ClusterName,
		Name:        name,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

func (a *App) committer() membership.Committer {
	if url := a.Config.MembershipURL; url != "" {
		return membership.NewMetricsCommitter(membership.NewHTTPCommitter(url, a.Store), "http")
	}
	return membership.NewMetricsCommitter(membership.NewLocalCommitter(a.Store, a.Journal), "local")
}

func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}

// Init writes the first descriptor of a standalone cell into the
// directory configured by cfg.
func Init(cfg *config.Config, c *cell.Cell, versionMajor int) error {
	store := storage.NewDirStore(cfg.Dir, cfg.File)
	if _, err := store.Stat(); err == nil {
		return fmt.Errorf("%s: %w", store.ActiveName(), ErrDescriptorExists)
	} else if !errors.Is(err, storage.ErrNoDescriptor) {
		return err
	}

	var buf bytes.Buffer
	if err := descriptor.Encode(&buf, []*cell.Cell{c}, versionMajor); err != nil {
		return err
	}
	name, err := store.Stage(buf.Bytes())
	if err != nil {
		return err
	}
	return store.Activate(name)
}

// Infos converts cells to their JSON view.
func Infos(cells []*cell.Cell) []cluster.CellInfo {
	out := make([]cluster.CellInfo, 0, len(cells))
	for _, c := range cells {
		out = append(out, cluster.CellInfo{
			ID:         c.ID,
			DomainName: c.DomainName,
			AdminVIP:   c.AdminVIP,
			DataVIP:    c.DataVIP,
			SPVIP:      c.SPVIP,
			Subnet:     c.Subnet,
			Gateway:    c.Gateway,
		})
	}
	return out
}
