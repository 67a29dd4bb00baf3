package topology

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/descriptor"
	"github.com/dreamware/multicell/internal/membership"
	"github.com/dreamware/multicell/internal/placement"
	"github.com/dreamware/multicell/internal/storage"
)

const descriptorName = "silo_info.xml"

func testCell(t *testing.T, id int) *cell.Cell {
	t.Helper()
	c := cell.New(id,
		fmt.Sprintf("cell%d.example.com", id),
		fmt.Sprintf("10.0.%d.10", id),
		fmt.Sprintf("10.0.%d.11", id),
		fmt.Sprintf("10.0.%d.12", id),
		fmt.Sprintf("10.0.%d.0", id),
		fmt.Sprintf("10.0.%d.1", id))
	r, err := placement.NewRule(id, 1, 0, 32700, 0)
	require.NoError(t, err)
	c.AddRule(r)
	c.SetServiceTag(cell.ServiceTagData{ProductNum: "P-100", ProductSerialNum: fmt.Sprintf("SN%d", id)})
	return c
}

func writeDescriptor(t *testing.T, store storage.Store, major int, cells ...*cell.Cell) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, descriptor.Encode(&buf, cells, major))
	writeRaw(t, store, buf.Bytes())
}

func writeRaw(t *testing.T, store storage.Store, data []byte) {
	t.Helper()
	name, err := store.Stage(data)
	require.NoError(t, err)
	require.NoError(t, store.Activate(name))
}

func newStore(t *testing.T) *storage.FileStore {
	return storage.NewDirStore(t.TempDir(), descriptorName)
}

func newService(t *testing.T, store storage.Store, local int, committer membership.Committer) *MultiCell {
	t.Helper()
	m, err := NewMultiCell(Options{
		LocalCellID: &local,
		Store:       store,
		Committer:   committer,
		Name:        t.Name(),
	})
	require.NoError(t, err)
	return m
}

// recorder collects delivered property changes.
type recorder struct {
	mu     sync.Mutex
	events []PropertyChange
}

func (r *recorder) PropertyChanged(ev PropertyChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) get() []PropertyChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PropertyChange(nil), r.events...)
}

// holdCommitter accepts every proposal without activating it, as a
// membership layer that has not finished the commit yet.
type holdCommitter struct {
	mu        sync.Mutex
	proposals []membership.Proposal
	err       error
}

func (h *holdCommitter) Commit(ctx context.Context, p membership.Proposal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.proposals = append(h.proposals, p)
	return h.err
}

func (h *holdCommitter) last() membership.Proposal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proposals[len(h.proposals)-1]
}
