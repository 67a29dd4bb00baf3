// Package membership hands newly prepared descriptor versions to the layer
// that commits them cluster-wide.
//
// The topology service never installs a new descriptor on its own. It
// stages the file and calls a Committer; whatever the Committer does is the
// commit. Failures are returned to the caller as-is, without retries.
package membership

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dreamware/multicell/internal/cluster"
	"github.com/dreamware/multicell/internal/journal"
	"github.com/dreamware/multicell/internal/storage"
)

// Proposal is a staged descriptor version awaiting commit.
type Proposal struct {
	Caller       string // operation that produced the version, e.g. "addCell"
	CellID       int    // proposing cell
	VersionMajor int
	Name         string // staged file name in the local store
	Payload      []byte // full server-side descriptor
}

// Committer commits a proposal cluster-wide.
type Committer interface {
	Commit(ctx context.Context, p Proposal) error
}

// CommitterFunc adapts a function to Committer.
type CommitterFunc func(ctx context.Context, p Proposal) error

func (f CommitterFunc) Commit(ctx context.Context, p Proposal) error {
	return f(ctx, p)
}

// LocalCommitter commits by activating the staged file in the local store.
// It serves single-host and emulated deployments, where this cell's store
// is the only copy of the descriptor.
//
// The commit is the activation. A journal entry that cannot be written
// afterwards is logged and counted, never returned.
type LocalCommitter struct {
	store   storage.Store
	journal *journal.Journal
}

// NewLocalCommitter returns a committer for store. j may be nil.
func NewLocalCommitter(store storage.Store, j *journal.Journal) *LocalCommitter {
	return &LocalCommitter{store: store, journal: j}
}

func (c *LocalCommitter) Commit(ctx context.Context, p Proposal) error {
	if err := c.store.Activate(p.Name); err != nil {
		return err
	}
	if c.journal == nil {
		return nil
	}
	_, err := c.journal.Record(ctx, journal.Entry{
		VersionMajor: p.VersionMajor,
		Caller:       p.Caller,
		CellID:       p.CellID,
		Name:         p.Name,
		Descriptor:   p.Payload,
	})
	if err != nil {
		journalFailuresTotal.Inc()
		log.Printf("[membership] %s: version %d committed but not journaled: %v", p.Caller, p.VersionMajor, err)
	}
	return nil
}

// HTTPCommitter posts proposals to an external membership service.
//
// The descriptor travels in the request body and the membership service
// installs its own copy on every cell, so the locally staged file is
// discarded once the service has accepted the proposal.
type HTTPCommitter struct {
	url   string
	store storage.Store
}

// NewHTTPCommitter returns a committer for the membership service at
// baseURL. store holds the staged files; it may be nil.
func NewHTTPCommitter(baseURL string, store storage.Store) *HTTPCommitter {
	return &HTTPCommitter{url: strings.TrimRight(baseURL, "/") + "/store-config", store: store}
}

func (c *HTTPCommitter) Commit(ctx context.Context, p Proposal) error {
	req := cluster.StoreConfigRequest{
		Caller:       p.Caller,
		CellID:       p.CellID,
		VersionMajor: p.VersionMajor,
		Name:         p.Name,
		Descriptor:   p.Payload,
	}
	var resp cluster.StoreConfigResponse
	if err := cluster.PostJSON(ctx, c.url, req, &resp); err != nil {
		return fmt.Errorf("store config version %d: %w", p.VersionMajor, err)
	}
	if resp.VersionMajor != 0 && resp.VersionMajor != p.VersionMajor {
		return fmt.Errorf("store config version %d: membership committed version %d", p.VersionMajor, resp.VersionMajor)
	}
	if c.store != nil {
		if err := c.store.Discard(p.Name); err != nil {
			log.Printf("[membership] %s: version %d: %v", p.Caller, p.VersionMajor, err)
		}
	}
	return nil
}
