package topology

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/descriptor"
	"github.com/dreamware/multicell/internal/journal"
	"github.com/dreamware/multicell/internal/membership"
	"github.com/dreamware/multicell/internal/placement"
	"github.com/dreamware/multicell/internal/storage"
)

func TestNewSelectsImplementation(t *testing.T) {
	svc, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, Inert{}, svc)

	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1))
	id := 1
	svc, err = New(Options{LocalCellID: &id, Store: store})
	require.NoError(t, err)
	assert.IsType(t, &MultiCell{}, svc)
}

func TestNewFailsOnBadDescriptor(t *testing.T) {
	id := 1

	_, err := NewMultiCell(Options{LocalCellID: &id, Store: newStore(t)})
	assert.ErrorIs(t, err, storage.ErrNoDescriptor)

	store := newStore(t)
	writeRaw(t, store, []byte(`<Multicell versionMajor="1"><Cell cellid="1"/></Multicell>`))
	_, err = NewMultiCell(Options{LocalCellID: &id, Store: store})
	assert.ErrorIs(t, err, descriptor.ErrMalformed)

	_, err = NewMultiCell(Options{LocalCellID: &id})
	assert.Error(t, err)
}

func TestAccessors(t *testing.T) {
	store := newStore(t)
	writeDescriptor(t, store, 4, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 2, nil)

	assert.Equal(t, 2, m.LocalCellID())
	assert.Equal(t, "10.0.2.10", m.AdminVIP())
	assert.Equal(t, "10.0.2.11", m.DataVIP())
	assert.Equal(t, "10.0.2.12", m.SPVIP())
	assert.Equal(t, "10.0.2.0", m.Subnet())
	assert.Equal(t, "10.0.2.1", m.Gateway())
	assert.Equal(t, "cell2.example.com", m.ClusterName())
	assert.Equal(t, "SN2", m.ServiceTagData().ProductSerialNum)
	assert.Equal(t, 4, m.MajorVersion())
	major, minor := m.Version()
	assert.Equal(t, 4, major)
	assert.Equal(t, 0, minor)
	assert.False(t, m.IsCellStandalone())
	assert.Len(t, m.Cells(), 2)

	tags := m.ServiceTagDataForAllCells()
	assert.Equal(t, "SN1", tags[1].ProductSerialNum)
	assert.Equal(t, "SN2", tags[2].ProductSerialNum)

	doc, err := m.XMLConfig()
	require.NoError(t, err)
	assert.Contains(t, doc, `versionMajor="4"`)
	assert.Contains(t, doc, `dataVIP="10.0.1.11"`)
	assert.NotContains(t, doc, "<Rule")
	assert.NotContains(t, doc, "ServiceTag")

	id := 2
	named, err := NewMultiCell(Options{LocalCellID: &id, Store: store, ClusterName: "west"})
	require.NoError(t, err)
	assert.Equal(t, "west", named.ClusterName())
}

func TestIsCellMaster(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDescriptor(t, storage.NewDirStore(dir, descriptorName), 1, testCell(t, 1), testCell(t, 2), testCell(t, 5))

	// One process per cell, all reading the same descriptor.
	services := map[int]*MultiCell{}
	for _, id := range []int{1, 2, 5} {
		services[id] = newService(t, storage.NewDirStore(dir, descriptorName), id, nil)
	}
	assert.True(t, services[1].IsCellMaster())
	assert.False(t, services[2].IsCellMaster())
	assert.False(t, services[5].IsCellMaster())

	require.NoError(t, services[1].RemoveCell(ctx, 1, 0))

	assert.True(t, services[2].IsCellMaster(), "2 is the smallest remaining cellid")
	assert.False(t, services[5].IsCellMaster())
	assert.Equal(t, 2, services[5].MajorVersion())
}

func TestRouting(t *testing.T) {
	store := newStore(t)
	local := testCell(t, 1)
	old, err := placement.NewRule(3, 0, 0, 32700, 0)
	require.NoError(t, err)
	local.Rules = append([]placement.Rule{old}, local.Rules...)
	writeDescriptor(t, store, 1, local, testCell(t, 3))
	m := newService(t, store, 1, nil)

	origin, err := m.OriginCellID(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, origin)
	origin, err = m.OriginCellID(0, 32700)
	require.NoError(t, err)
	assert.Equal(t, 3, origin)

	_, err = m.OriginCellID(1, 0)
	var re *RouteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "originCellID", re.Op)
	assert.ErrorIs(t, err, ErrNoRoute)

	number, err := m.RuleNumber(3, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, number)
	_, err = m.RuleNumber(7, 5)
	assert.ErrorIs(t, err, ErrNoRoute)

	silo, err := m.NextSiloLocation("a")
	require.NoError(t, err)
	assert.Equal(t, 981, silo)
	again, _ := m.NextSiloLocation("a")
	assert.Equal(t, silo, again)
	assert.Equal(t, 1, m.CurrentRuleNumber())
}

func TestNextSiloLocationWithoutRule(t *testing.T) {
	store := newStore(t)
	c := testCell(t, 1)
	c.Rules = nil
	writeDescriptor(t, store, 1, c)
	m := newService(t, store, 1, nil)

	_, err := m.NextSiloLocation("a")
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, 0, m.CurrentRuleNumber())
}

func TestReadYourOwnWrite(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 3, testCell(t, 1), testCell(t, 2))
	hold := &holdCommitter{}
	m := newService(t, store, 1, hold)
	rec := &recorder{}
	m.AddPropertyListener(rec)

	require.NoError(t, m.UpdateProperties(ctx, 1, map[string]string{PropDataVIP: "10.0.0.9"}))

	assert.Equal(t, "10.0.0.9", m.DataVIP())
	assert.Equal(t, []PropertyChange{{Property: PropDataVIP, Old: "10.0.1.11", New: "10.0.0.9"}}, rec.get())

	p := hold.last()
	assert.Equal(t, "updateProperties", p.Caller)
	assert.Equal(t, 4, p.VersionMajor)
	assert.Equal(t, 1, p.CellID)
	assert.Contains(t, string(p.Payload), `dataVIP="10.0.0.9"`)
	assert.NotEqual(t, descriptorName, p.Name)

	// The next update builds on the handed-off version.
	require.NoError(t, m.UpdateProperties(ctx, 1, map[string]string{PropGateway: "10.0.0.1"}))
	assert.Equal(t, 5, hold.last().VersionMajor)
	assert.Equal(t, "10.0.0.9", m.DataVIP())
}

func TestUpdatePropertiesRemoteCell(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, nil)
	rec := &recorder{}
	m.AddPropertyListener(rec)

	require.NoError(t, m.UpdateProperties(ctx, 2, map[string]string{
		PropAdminVIP:   "192.168.2.10",
		PropDomainName: "renamed.example.com",
	}))

	assert.Equal(t, "10.0.1.10", m.AdminVIP())
	assert.Empty(t, rec.get())
	for _, c := range m.Cells() {
		if c.ID == 2 {
			assert.Equal(t, "192.168.2.10", c.AdminVIP)
			assert.Equal(t, "renamed.example.com", c.DomainName)
		}
	}
	assert.Equal(t, 2, m.MajorVersion())
}

func TestUpdatePropertiesErrors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, nil)

	assert.ErrorIs(t, m.UpdateProperties(ctx, 1, nil), ErrBadProperty)
	assert.ErrorIs(t, m.UpdateProperties(ctx, 1, map[string]string{"color": "blue"}), ErrBadProperty)
	assert.ErrorIs(t, m.UpdateProperties(ctx, 9, map[string]string{PropDataVIP: "x"}), descriptor.ErrUnknownCell)
	assert.ErrorIs(t, m.UpdateProperties(ctx, 2, map[string]string{PropCellID: "3"}), ErrNotLocalCell)
	assert.ErrorIs(t, m.UpdateProperties(ctx, 1, map[string]string{PropCellID: "three"}), ErrBadProperty)
	assert.ErrorIs(t, m.UpdateProperties(ctx, 1, map[string]string{PropCellID: "3"}), descriptor.ErrNotStandalone)

	assert.Equal(t, 1, m.MajorVersion())
	assert.Equal(t, "10.0.1.11", m.DataVIP())
}

func TestSetupUpdate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 7))
	m := newService(t, store, 7, nil)
	require.True(t, m.IsCellStandalone())

	err := m.UpdateProperties(ctx, 7, map[string]string{
		PropCellID:   "3",
		PropAdminVIP: "172.16.0.10",
		PropDataVIP:  "172.16.0.11",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, m.LocalCellID())
	assert.Equal(t, "172.16.0.10", m.AdminVIP())
	assert.Equal(t, "172.16.0.11", m.DataVIP())
	assert.Equal(t, "10.0.7.12", m.SPVIP(), "unspecified endpoints are kept")

	cells := m.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, 3, cells[0].ID)
	assert.Equal(t, 3, cells[0].Rules[0].OriginCellID)
	assert.Equal(t, "SN7", cells[0].ServiceTag.ProductSerialNum)
	assert.True(t, m.IsCellMaster())
	assert.Equal(t, 2, m.MajorVersion())

	origin, err := m.OriginCellID(1, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, origin)
}

func TestSetupIsVisibleBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 7))
	hold := &holdCommitter{}
	m := newService(t, store, 7, hold)

	require.NoError(t, m.UpdateProperties(ctx, 7, map[string]string{PropCellID: "3", PropSPVIP: "172.16.0.12"}))
	assert.Equal(t, 3, m.LocalCellID())
	assert.Equal(t, "172.16.0.12", m.SPVIP())
	assert.Contains(t, string(hold.last().Payload), `cellid="3"`)

	// Until the membership layer activates it, the handed-off topology is
	// what the cell serves.
	assert.True(t, m.IsCellMaster())
	assert.True(t, m.IsCellStandalone())
	cells := m.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, 3, cells[0].ID)
	origin, err := m.OriginCellID(1, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, origin)

	tag := cell.ServiceTagData{ProductNum: "P-200", ProductSerialNum: "SN3"}
	require.NoError(t, m.UpdateServiceTagData(ctx, 3, tag))
	require.NoError(t, m.UpdateProperties(ctx, 3, map[string]string{PropDataVIP: "172.16.0.11"}))
	assert.Equal(t, 4, hold.last().VersionMajor)
	assert.Equal(t, 3, hold.last().CellID)

	// The membership layer completes the commit later.
	require.NoError(t, store.Activate(hold.last().Name))
	cells = m.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, 3, cells[0].ID)
	assert.Equal(t, "172.16.0.11", cells[0].DataVIP)
	assert.Equal(t, tag, cells[0].ServiceTag)
	assert.Equal(t, 4, m.MajorVersion())
	assert.True(t, m.IsCellMaster())
}

func TestSetupRenamesDomain(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 7))
	m := newService(t, store, 7, nil)

	require.NoError(t, m.UpdateProperties(ctx, 7, map[string]string{
		PropCellID:     "3",
		PropDomainName: "cell3.example.com",
	}))
	assert.Equal(t, "cell3.example.com", m.ClusterName())
	cells := m.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, "cell3.example.com", cells[0].DomainName)

	id := 3
	reopened, err := NewMultiCell(Options{LocalCellID: &id, Store: store})
	require.NoError(t, err)
	assert.Equal(t, "cell3.example.com", reopened.ClusterName())
}

func TestAddRemoveInverse(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, nil)
	before := m.Cells()

	require.NoError(t, m.AddCell(ctx, testCell(t, 9), 0))
	assert.Len(t, m.Cells(), 3)
	assert.Equal(t, 2, m.MajorVersion())

	require.NoError(t, m.RemoveCell(ctx, 9, 10))
	assert.True(t, cell.EqualAll(before, m.Cells()))
	assert.Equal(t, 10, m.MajorVersion(), "supplied version is used")
}

func TestAddCellsAndRemoveCells(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 4))
	m := newService(t, store, 4, nil)

	require.NoError(t, m.AddCells(ctx, []*cell.Cell{testCell(t, 2), testCell(t, 6)}, 0))
	assert.Len(t, m.Cells(), 3)
	assert.False(t, m.IsCellMaster())

	err := m.AddCells(ctx, []*cell.Cell{testCell(t, 8), testCell(t, 2)}, 0)
	assert.ErrorIs(t, err, descriptor.ErrDuplicateCell)
	assert.Len(t, m.Cells(), 3, "partial batch is rolled back")

	assert.ErrorIs(t, m.AddCell(ctx, nil, 0), ErrBadProperty)

	require.NoError(t, m.RemoveCells(ctx, []int{2, 6}, 0))
	assert.True(t, m.IsCellMaster())
	assert.True(t, m.IsCellStandalone())
	assert.ErrorIs(t, m.RemoveCells(ctx, []int{42}, 0), descriptor.ErrUnknownCell)
}

func TestCommitFailureRestoresView(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	fail := errors.New("membership unavailable")
	m := newService(t, store, 1, &holdCommitter{err: fail})
	rec := &recorder{}
	m.AddPropertyListener(rec)
	failedBefore := testutil.ToFloat64(mutationsTotal.WithLabelValues("updateProperties", "failed"))

	err := m.UpdateProperties(ctx, 1, map[string]string{PropDataVIP: "10.0.0.9"})
	assert.ErrorIs(t, err, fail)

	assert.Equal(t, "10.0.1.11", m.DataVIP())
	assert.Equal(t, []PropertyChange{
		{Property: PropDataVIP, Old: "10.0.1.11", New: "10.0.0.9"},
		{Property: PropDataVIP, Old: "10.0.0.9", New: "10.0.1.11"},
	}, rec.get())
	for _, c := range m.Cells() {
		assert.NotEqual(t, "10.0.0.9", c.DataVIP)
	}
	assert.Equal(t, 1, m.MajorVersion())
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(mutationsTotal.WithLabelValues("updateProperties", "failed")))

	assert.ErrorIs(t, m.AddCell(ctx, testCell(t, 3), 0), fail)
	assert.Len(t, m.Cells(), 2)
}

func TestCommitFailureDiscardsStagedFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := storage.NewDirStore(dir, descriptorName)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, &holdCommitter{err: errors.New("membership unavailable")})

	for i := 0; i < 3; i++ {
		assert.Error(t, m.UpdateProperties(ctx, 1, map[string]string{PropDataVIP: "10.0.0.9"}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{descriptorName}, names)
}

func TestJournalFailureKeepsCommittedUpdate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, j.Close())
	m := newService(t, store, 1, membership.NewLocalCommitter(store, j))
	rec := &recorder{}
	m.AddPropertyListener(rec)

	require.NoError(t, m.UpdateProperties(ctx, 1, map[string]string{PropDataVIP: "10.0.0.9"}))
	assert.Equal(t, "10.0.0.9", m.DataVIP())
	assert.Equal(t, 2, m.MajorVersion())
	assert.Equal(t, []PropertyChange{{Property: PropDataVIP, Old: "10.0.1.11", New: "10.0.0.9"}}, rec.get())

	id := 1
	reopened, err := NewMultiCell(Options{LocalCellID: &id, Store: store})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", reopened.DataVIP())
}

func TestServiceTagUpdates(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, nil)
	rec := &recorder{}
	m.AddPropertyListener(rec)

	require.NoError(t, m.UpdateServiceTagData(ctx, 2, cell.ServiceTagData{ProductNum: "P-200"}))
	assert.Empty(t, rec.get())
	assert.Equal(t, cell.ServiceTagData{ProductNum: "P-200"}, m.ServiceTagDataForAllCells()[2])

	tag := cell.ServiceTagData{ProductNum: "P-300", InstanceURN: "urn:cell:1"}
	require.NoError(t, m.UpdateServiceTagData(ctx, 1, tag))
	assert.Equal(t, tag, m.ServiceTagData())
	events := rec.get()
	require.Len(t, events, 1)
	assert.Equal(t, PropServiceTag, events[0].Property)
	assert.Equal(t, "P-300///urn:cell:1", events[0].New)

	c1, c2 := testCell(t, 1), testCell(t, 2)
	c1.ServiceTag = cell.ServiceTagData{}
	c2.ServiceTag = cell.ServiceTagData{MarketingNum: "M2"}
	require.NoError(t, m.UpdateServiceTagDataForCells(ctx, []*cell.Cell{c1, c2}))
	assert.True(t, m.ServiceTagData().IsZero())
	assert.Equal(t, "M2", m.ServiceTagDataForAllCells()[2].MarketingNum)
	assert.Len(t, rec.get(), 2)
	assert.Equal(t, 4, m.MajorVersion())

	assert.ErrorIs(t, m.UpdateServiceTagData(ctx, 8, tag), descriptor.ErrUnknownCell)
}

func TestRefreshPicksUpExternalCommit(t *testing.T) {
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, nil)
	rec := &recorder{}
	m.AddPropertyListener(rec)

	changed := testCell(t, 1)
	changed.SetAdminVIP("10.9.9.10")
	changed.SetGateway("10.9.9.1")
	writeDescriptor(t, store, 2, changed, testCell(t, 2))

	assert.Equal(t, "10.9.9.10", m.AdminVIP())
	assert.Equal(t, []PropertyChange{
		{Property: PropAdminVIP, Old: "10.0.1.10", New: "10.9.9.10"},
		{Property: PropGateway, Old: "10.0.1.1", New: "10.9.9.1"},
	}, rec.get())
	assert.Equal(t, 2, m.MajorVersion())

	// No change, no re-parse, no event.
	m.DataVIP()
	assert.Len(t, rec.get(), 2)
}

func TestUntrustedStandaloneParse(t *testing.T) {
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1))
	m := newService(t, store, 1, nil)

	writeDescriptor(t, store, 2, testCell(t, 2))
	cells := m.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, 1, cells[0].ID)
	assert.Equal(t, 1, m.MajorVersion())
	assert.Equal(t, "10.0.1.10", m.AdminVIP())
}

func TestMalformedRefreshKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, nil)

	writeRaw(t, store, []byte(`<Multicell versionMajor="2"><Cell/></Multicell>`))
	assert.Equal(t, "10.0.1.11", m.DataVIP())
	assert.Len(t, m.Cells(), 2)
	assert.ErrorIs(t, m.AddCell(ctx, testCell(t, 3), 0), descriptor.ErrMalformed)

	writeDescriptor(t, store, 3, testCell(t, 1), testCell(t, 2))
	require.NoError(t, m.AddCell(ctx, testCell(t, 3), 0))
	assert.Equal(t, 4, m.MajorVersion())
}

func TestListenerOrderAndRemoval(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1))
	m := newService(t, store, 1, nil)

	var order []string
	first := m.AddPropertyListener(ListenerFunc(func(ev PropertyChange) { order = append(order, "first:"+ev.Property) }))
	m.AddPropertyListener(ListenerFunc(func(ev PropertyChange) { order = append(order, "second:"+ev.Property) }))

	require.NoError(t, m.UpdateProperties(ctx, 1, map[string]string{PropSubnet: "10.1.0.0", PropSPVIP: "10.1.0.12"}))
	assert.Equal(t, []string{"first:spVIP", "second:spVIP", "first:subnet", "second:subnet"}, order)

	assert.True(t, m.RemovePropertyListener(first))
	assert.False(t, m.RemovePropertyListener(first))
	order = nil
	require.NoError(t, m.UpdateProperties(ctx, 1, map[string]string{PropGateway: "10.1.0.1"}))
	assert.Equal(t, []string{"second:gateway"}, order)
}

func TestListenerMayReenter(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1), testCell(t, 2))
	m := newService(t, store, 1, nil)

	seen := make(chan string, 4)
	m.AddPropertyListener(ListenerFunc(func(ev PropertyChange) {
		// Reading and writing from a listener must not deadlock.
		seen <- m.DataVIP()
		if ev.New == "10.0.0.9" {
			if err := m.UpdateProperties(ctx, 1, map[string]string{PropAdminVIP: "10.0.0.8"}); err != nil {
				t.Errorf("nested update: %v", err)
			}
		}
	}))

	done := make(chan error, 1)
	go func() { done <- m.UpdateProperties(ctx, 1, map[string]string{PropDataVIP: "10.0.0.9"}) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("update deadlocked")
	}

	assert.Equal(t, "10.0.0.9", <-seen)
	assert.Equal(t, "10.0.0.9", <-seen, "nested change is delivered after the current one")
	assert.Equal(t, "10.0.0.8", m.AdminVIP())
	assert.Equal(t, 3, m.MajorVersion())
}

func TestListenerPanicDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1))
	m := newService(t, store, 1, nil)

	m.AddPropertyListener(ListenerFunc(func(PropertyChange) { panic("boom") }))
	rec := &recorder{}
	m.AddPropertyListener(rec)

	require.NoError(t, m.UpdateProperties(ctx, 1, map[string]string{PropDataVIP: "10.0.0.9"}))
	require.NoError(t, m.UpdateProperties(ctx, 1, map[string]string{PropDataVIP: "10.0.0.10"}))
	assert.Len(t, rec.get(), 2)
}

func TestRouteErrorMessage(t *testing.T) {
	err := &RouteError{Op: "ruleNumber", Key: 4, Silo: 17}
	assert.True(t, strings.HasPrefix(err.Error(), "ruleNumber(4, 17)"))
}
