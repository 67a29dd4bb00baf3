package topology

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/exp/slices"

	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/descriptor"
	"github.com/dreamware/multicell/internal/membership"
	"github.com/dreamware/multicell/internal/placement"
	"github.com/dreamware/multicell/internal/storage"
)

// editable lists the properties a non-setup update may change, in the
// order they are applied.
var editable = []string{PropDomainName, PropAdminVIP, PropDataVIP, PropSPVIP, PropSubnet, PropGateway}

// snapshot is the cached view of the local cell.
type snapshot struct {
	cellID     int
	domainName string
	adminVIP   string
	dataVIP    string
	spVIP      string
	subnet     string
	gateway    string
	serviceTag cell.ServiceTagData
	master     placement.Rule
	hasMaster  bool
}

func snapshotOf(c *cell.Cell) snapshot {
	s := snapshot{
		cellID:     c.ID,
		domainName: c.DomainName,
		adminVIP:   c.AdminVIP,
		dataVIP:    c.DataVIP,
		spVIP:      c.SPVIP,
		subnet:     c.Subnet,
		gateway:    c.Gateway,
		serviceTag: c.ServiceTag,
	}
	s.master, s.hasMaster = c.MasterRule()
	return s
}

// changes lists the watched fields that differ in next.
func (s snapshot) changes(next snapshot) []PropertyChange {
	var out []PropertyChange
	for _, f := range []PropertyChange{
		{PropDataVIP, s.dataVIP, next.dataVIP},
		{PropAdminVIP, s.adminVIP, next.adminVIP},
		{PropSPVIP, s.spVIP, next.spVIP},
		{PropSubnet, s.subnet, next.subnet},
		{PropGateway, s.gateway, next.gateway},
	} {
		if f.Old != f.New {
			out = append(out, f)
		}
	}
	return out
}

// MultiCell is the Service of a cell that is part of a multi-cell cluster.
type MultiCell struct {
	mu          sync.Mutex
	name        string
	store       storage.Store
	committer   membership.Committer
	codec       *descriptor.Codec
	clusterName string

	snap     snapshot
	lastSeen time.Time // modification time of the last parsed descriptor
	loadErr  error     // outcome of the last parse
	notify   notifier
}

var _ Service = (*MultiCell)(nil)

// NewMultiCell loads the descriptor from opts.Store. Without a Committer,
// commits activate the staged file in opts.Store directly.
func NewMultiCell(opts Options) (*MultiCell, error) {
	if opts.LocalCellID == nil {
		return nil, ErrNotMulticell
	}
	if opts.Store == nil {
		return nil, errors.New("topology: no descriptor store")
	}
	m := &MultiCell{
		name:        opts.Name,
		store:       opts.Store,
		committer:   opts.Committer,
		codec:       descriptor.NewCodec(),
		clusterName: opts.ClusterName,
		snap:        snapshot{cellID: *opts.LocalCellID},
		notify:      notifier{size: opts.QueueSize},
	}
	if m.name == "" {
		m.name = "topology"
	}
	if m.committer == nil {
		m.committer = membership.NewLocalCommitter(opts.Store, nil)
	}
	if m.notify.size <= 0 {
		m.notify.size = DefaultQueueSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshLocked("init"); err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Store.ActiveName(), err)
	}
	if _, ok := m.codec.Cell(m.snap.cellID); !ok {
		log.Printf("[%s] init: local cell %d is not in the descriptor", m.name, m.snap.cellID)
	}
	return m, nil
}

func (m *MultiCell) logf(caller, format string, args ...any) {
	log.Printf("[%s] %s: cell %d: "+format, append([]any{m.name, caller, m.snap.cellID}, args...)...)
}

// lock takes the service lock and refreshes the snapshot.
func (m *MultiCell) lock(caller string) error {
	m.mu.Lock()
	return m.refreshLocked(caller)
}

// unlock releases the service lock and, unless another goroutine is
// already doing so, delivers queued notifications.
func (m *MultiCell) unlock() {
	if m.notify.draining {
		m.mu.Unlock()
		return
	}
	m.notify.draining = true
	for {
		d, ok := m.notify.next()
		if !ok {
			break
		}
		m.mu.Unlock()
		deliver(m.name, d)
		m.mu.Lock()
	}
	m.notify.draining = false
	m.mu.Unlock()
}

// refreshLocked re-parses the descriptor if its modification time moved.
// The previous snapshot stays in place when the new descriptor is
// unreadable; the error is kept and returned until a good one appears.
func (m *MultiCell) refreshLocked(caller string) error {
	mtime, err := m.store.Stat()
	if err != nil {
		m.logf(caller, "stat descriptor: %v", err)
		return err
	}
	if mtime.Equal(m.lastSeen) {
		return m.loadErr
	}
	m.lastSeen = mtime
	m.loadErr = m.reload(caller)
	if m.loadErr != nil {
		refreshesTotal.WithLabelValues("failed").Inc()
		m.logf(caller, "parse descriptor: %v", m.loadErr)
	}
	return m.loadErr
}

func (m *MultiCell) reload(caller string) error {
	rc, err := m.store.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	cells, trusted, err := m.codec.Parse(rc)
	if err != nil {
		return err
	}
	if !trusted {
		refreshesTotal.WithLabelValues("untrusted").Inc()
		m.logf(caller, "ignoring standalone descriptor for another cellid")
		return nil
	}
	refreshesTotal.WithLabelValues("reloaded").Inc()

	i := slices.IndexFunc(cells, func(c *cell.Cell) bool { return c.ID == m.snap.cellID })
	if i < 0 {
		m.logf(caller, "local cell is not in the descriptor")
		return nil
	}
	m.apply(snapshotOf(cells[i]))
	return nil
}

// apply replaces the snapshot and queues the watched-field changes.
func (m *MultiCell) apply(next snapshot) {
	for _, ev := range m.snap.changes(next) {
		m.enqueue(ev)
	}
	m.snap = next
}

func (m *MultiCell) enqueue(ev PropertyChange) {
	if dropped, ok := m.notify.enqueue(ev); ok {
		notificationsDroppedTotal.Inc()
		log.Printf("[%s] notification queue full, dropped %s change %q -> %q",
			m.name, dropped.Property, dropped.Old, dropped.New)
	}
}

func (m *MultiCell) setServiceTag(data cell.ServiceTagData) {
	old := m.snap.serviceTag
	m.snap.serviceTag = data
	m.enqueue(PropertyChange{Property: PropServiceTag, Old: old.String(), New: data.String()})
}

// mutate runs fn against the codec under the lock and persists the result.
// On any failure the cached snapshot is restored and the descriptor on
// disk is re-read, and adopted, on the next call.
func (m *MultiCell) mutate(ctx context.Context, op string, versionMajor int, fn func() error) (err error) {
	m.mu.Lock()
	defer m.unlock()
	defer func() {
		result := "ok"
		if err != nil {
			result = "failed"
			m.logf(op, "%v", err)
		}
		mutationsTotal.WithLabelValues(op, result).Inc()
	}()

	if err := m.refreshLocked(op); err != nil {
		return err
	}
	saved := m.snap
	if err := fn(); err != nil {
		m.rollback(saved)
		return err
	}
	if versionMajor <= 0 {
		versionMajor = m.codec.VersionMajor() + 1
	}
	if err := m.persist(ctx, op, versionMajor); err != nil {
		m.rollback(saved)
		return err
	}
	return nil
}

func (m *MultiCell) rollback(saved snapshot) {
	if m.snap.serviceTag != saved.serviceTag {
		m.setServiceTag(saved.serviceTag)
	}
	m.apply(saved)
	m.codec.TrustNextParse()
	m.lastSeen = time.Time{}
}

// persist stages the authoritative topology as a new descriptor version
// and hands it to the committer. Once handed off, the proposed topology is
// what this cell serves until a newer descriptor is parsed. A staged file
// whose commit failed is removed; on success it belongs to the committer.
func (m *MultiCell) persist(ctx context.Context, op string, versionMajor int) error {
	cells := m.codec.Authoritative()
	var buf bytes.Buffer
	if err := descriptor.Encode(&buf, cells, versionMajor); err != nil {
		return fmt.Errorf("encode version %d: %w", versionMajor, err)
	}
	name, err := m.store.Stage(buf.Bytes())
	if err != nil {
		return err
	}
	err = m.committer.Commit(ctx, membership.Proposal{
		Caller:       op,
		CellID:       m.snap.cellID,
		VersionMajor: versionMajor,
		Name:         name,
		Payload:      buf.Bytes(),
	})
	if err != nil {
		if rmErr := m.store.Discard(name); rmErr != nil {
			m.logf(op, "discard %s: %v", name, rmErr)
		}
		return fmt.Errorf("commit version %d: %w", versionMajor, err)
	}
	m.codec.Adopt(cells, versionMajor)
	return nil
}

// Cells returns a copy of the configured cells.
func (m *MultiCell) Cells() []*cell.Cell {
	m.lock("cells")
	defer m.unlock()
	return m.codec.Cells()
}

func (m *MultiCell) Version() (int, int) {
	m.lock("version")
	defer m.unlock()
	return m.codec.VersionMajor(), m.codec.VersionMinor()
}

func (m *MultiCell) MajorVersion() int {
	m.lock("majorVersion")
	defer m.unlock()
	return m.codec.VersionMajor()
}

func (m *MultiCell) XMLConfig() (string, error) {
	m.lock("xmlConfig")
	defer m.unlock()
	var buf bytes.Buffer
	if err := m.codec.WriteClient(&buf, m.codec.VersionMajor(), m.codec.VersionMinor()); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (m *MultiCell) LocalCellID() int {
	m.lock("localCellID")
	defer m.unlock()
	return m.snap.cellID
}

func (m *MultiCell) AdminVIP() string {
	m.lock("adminVIP")
	defer m.unlock()
	return m.snap.adminVIP
}

func (m *MultiCell) DataVIP() string {
	m.lock("dataVIP")
	defer m.unlock()
	return m.snap.dataVIP
}

func (m *MultiCell) SPVIP() string {
	m.lock("spVIP")
	defer m.unlock()
	return m.snap.spVIP
}

func (m *MultiCell) Subnet() string {
	m.lock("subnet")
	defer m.unlock()
	return m.snap.subnet
}

func (m *MultiCell) Gateway() string {
	m.lock("gateway")
	defer m.unlock()
	return m.snap.gateway
}

// ClusterName returns the configured cluster name, else the local cell's
// domain name.
func (m *MultiCell) ClusterName() string {
	m.lock("clusterName")
	defer m.unlock()
	if m.clusterName != "" {
		return m.clusterName
	}
	return m.snap.domainName
}

func (m *MultiCell) ServiceTagData() cell.ServiceTagData {
	m.lock("serviceTagData")
	defer m.unlock()
	return m.snap.serviceTag
}

func (m *MultiCell) ServiceTagDataForAllCells() map[int]cell.ServiceTagData {
	m.lock("serviceTagDataForAllCells")
	defer m.unlock()
	cells := m.codec.Cells()
	out := make(map[int]cell.ServiceTagData, len(cells))
	for _, c := range cells {
		out[c.ID] = c.ServiceTag
	}
	return out
}

func (m *MultiCell) IsCellMaster() bool {
	m.lock("isCellMaster")
	defer m.unlock()
	ids := cellIDs(m.codec.Cells())
	return !ids.IsEmpty() && int(ids.Minimum()) == m.snap.cellID
}

func (m *MultiCell) IsCellStandalone() bool {
	m.lock("isCellStandalone")
	defer m.unlock()
	return m.codec.IsStandalone()
}

func cellIDs(cells []*cell.Cell) *roaring.Bitmap {
	ids := roaring.New()
	for _, c := range cells {
		if c.ID >= 0 {
			ids.Add(uint32(c.ID))
		}
	}
	return ids
}

// OriginCellID returns the origin cell of the local cell's rule numbered
// ruleNumber whose interval holds silo.
func (m *MultiCell) OriginCellID(ruleNumber, silo int) (int, error) {
	m.lock("originCellID")
	defer m.unlock()
	if c, ok := m.codec.Cell(m.snap.cellID); ok {
		if origin, found := c.OriginCellFor(ruleNumber, silo); found {
			return origin, nil
		}
	}
	return 0, &RouteError{Op: "originCellID", Key: ruleNumber, Silo: silo}
}

// RuleNumber returns the number of the local cell's rule originating at
// originCellID whose interval holds silo.
func (m *MultiCell) RuleNumber(originCellID, silo int) (int, error) {
	m.lock("ruleNumber")
	defer m.unlock()
	if c, ok := m.codec.Cell(m.snap.cellID); ok {
		if number, found := c.RuleNumberFor(originCellID, silo); found {
			return number, nil
		}
	}
	return 0, &RouteError{Op: "ruleNumber", Key: originCellID, Silo: silo}
}

// NextSiloLocation places id in the local cell's master interval.
func (m *MultiCell) NextSiloLocation(id string) (int, error) {
	m.lock("nextSiloLocation")
	defer m.unlock()
	if !m.snap.hasMaster {
		return 0, &RouteError{Op: "nextSiloLocation"}
	}
	return m.snap.master.Interval.NextSiloLocation(id), nil
}

// CurrentRuleNumber returns the number of the rule NextSiloLocation
// places under, or 0 if the local cell has no rule.
func (m *MultiCell) CurrentRuleNumber() int {
	m.lock("currentRuleNumber")
	defer m.unlock()
	return m.snap.master.RuleNumber
}

func (m *MultiCell) AddCell(ctx context.Context, c *cell.Cell, versionMajor int) error {
	return m.mutate(ctx, "addCell", versionMajor, func() error {
		return m.addCell(c)
	})
}

func (m *MultiCell) AddCells(ctx context.Context, cells []*cell.Cell, versionMajor int) error {
	return m.mutate(ctx, "addCells", versionMajor, func() error {
		for _, c := range cells {
			if err := m.addCell(c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MultiCell) addCell(c *cell.Cell) error {
	if c == nil || c.ID < 0 {
		return fmt.Errorf("%s: %w", PropCellID, ErrBadProperty)
	}
	return m.codec.AddCell(c)
}

func (m *MultiCell) RemoveCell(ctx context.Context, cellID int, versionMajor int) error {
	return m.mutate(ctx, "rmCell", versionMajor, func() error {
		return m.codec.RemoveCell(cellID)
	})
}

func (m *MultiCell) RemoveCells(ctx context.Context, ids []int, versionMajor int) error {
	return m.mutate(ctx, "rmCells", versionMajor, func() error {
		for _, id := range ids {
			if err := m.codec.RemoveCell(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateProperties changes properties of cell cellID and commits the
// result as the next descriptor version.
//
// A PropCellID key makes it a setup update: the local cell, which must be
// standalone, takes the given cellid and endpoints. Other keys must be
// editable properties; changes to the local cell are visible to this
// process as soon as the commit is handed off.
func (m *MultiCell) UpdateProperties(ctx context.Context, cellID int, props map[string]string) error {
	if len(props) == 0 {
		return fmt.Errorf("no properties: %w", ErrBadProperty)
	}
	if _, ok := props[PropCellID]; ok {
		return m.mutate(ctx, "updateProperties", 0, func() error {
			return m.stageSetup(cellID, props)
		})
	}
	return m.mutate(ctx, "updateProperties", 0, func() error {
		return m.setProperties(cellID, props)
	})
}

func (m *MultiCell) stageSetup(cellID int, props map[string]string) error {
	if cellID != m.snap.cellID {
		return fmt.Errorf("cell %d: %w", cellID, ErrNotLocalCell)
	}
	newID, err := strconv.Atoi(strings.TrimSpace(props[PropCellID]))
	if err != nil || newID < 0 {
		return fmt.Errorf("%s=%q: %w", PropCellID, props[PropCellID], ErrBadProperty)
	}
	for k := range props {
		if k == PropCellID {
			continue
		}
		if !slices.Contains(editable, k) {
			return fmt.Errorf("%s: %w", k, ErrBadProperty)
		}
	}
	pick := func(key, current string) string {
		if v, ok := props[key]; ok {
			return v
		}
		return current
	}

	s := descriptor.Setup{
		CellID:     newID,
		DomainName: pick(PropDomainName, m.snap.domainName),
		AdminVIP:   pick(PropAdminVIP, m.snap.adminVIP),
		DataVIP:    pick(PropDataVIP, m.snap.dataVIP),
		SPVIP:      pick(PropSPVIP, m.snap.spVIP),
		Subnet:     pick(PropSubnet, m.snap.subnet),
		Gateway:    pick(PropGateway, m.snap.gateway),
	}
	if err := m.codec.StageSetupCell(s); err != nil {
		return err
	}

	next := m.snap
	next.cellID = s.CellID
	if s.DomainName != "" {
		next.domainName = s.DomainName
	}
	next.adminVIP = s.AdminVIP
	next.dataVIP = s.DataVIP
	next.spVIP = s.SPVIP
	next.subnet = s.Subnet
	next.gateway = s.Gateway
	if next.hasMaster {
		next.master.OriginCellID = newID
	}
	m.apply(next)
	return nil
}

func (m *MultiCell) setProperties(cellID int, props map[string]string) error {
	for k := range props {
		if !slices.Contains(editable, k) {
			return fmt.Errorf("%s: %w", k, ErrBadProperty)
		}
	}

	next := m.snap
	for _, k := range editable {
		v, ok := props[k]
		if !ok {
			continue
		}
		var err error
		switch k {
		case PropDomainName:
			err = m.codec.SetDomainName(cellID, v)
			next.domainName = v
		case PropAdminVIP:
			err = m.codec.SetAdminVIP(cellID, v)
			next.adminVIP = v
		case PropDataVIP:
			err = m.codec.SetDataVIP(cellID, v)
			next.dataVIP = v
		case PropSPVIP:
			err = m.codec.SetSPVIP(cellID, v)
			next.spVIP = v
		case PropSubnet:
			err = m.codec.SetSubnet(cellID, v)
			next.subnet = v
		case PropGateway:
			err = m.codec.SetGateway(cellID, v)
			next.gateway = v
		}
		if err != nil {
			return err
		}
	}
	if cellID == m.snap.cellID {
		m.apply(next)
	}
	return nil
}

func (m *MultiCell) UpdateServiceTagData(ctx context.Context, cellID int, data cell.ServiceTagData) error {
	return m.mutate(ctx, "updateServiceTagData", 0, func() error {
		return m.updateServiceTag(cellID, data)
	})
}

func (m *MultiCell) UpdateServiceTagDataForCells(ctx context.Context, cells []*cell.Cell) error {
	return m.mutate(ctx, "updateServiceTagData", 0, func() error {
		for _, c := range cells {
			if err := m.updateServiceTag(c.ID, c.ServiceTag); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MultiCell) updateServiceTag(cellID int, data cell.ServiceTagData) error {
	if err := m.codec.SetServiceTag(cellID, data); err != nil {
		return err
	}
	if cellID == m.snap.cellID {
		m.setServiceTag(data)
	}
	return nil
}

func (m *MultiCell) AddPropertyListener(l PropertyListener) ListenerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notify.add(l)
}

func (m *MultiCell) RemovePropertyListener(id ListenerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notify.remove(id)
}
