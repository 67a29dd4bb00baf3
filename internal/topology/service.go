package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/membership"
	"github.com/dreamware/multicell/internal/storage"
)

// Property keys accepted by UpdateProperties and reported in
// PropertyChange events.
const (
	PropCellID     = "cellid"
	PropDomainName = "domainName"
	PropAdminVIP   = "adminVIP"
	PropDataVIP    = "dataVIP"
	PropSPVIP      = "spVIP"
	PropSubnet     = "subnet"
	PropGateway    = "gateway"
	PropServiceTag = "serviceTag"
)

var (
	// ErrNotMulticell is returned by mutations on a process that has no
	// local cellid configured.
	ErrNotMulticell = errors.New("not a multi-cell deployment")

	// ErrNotLocalCell is returned when a setup update targets a cell other
	// than the local one.
	ErrNotLocalCell = errors.New("setup update must target the local cell")

	// ErrBadProperty is returned for unknown property keys and malformed
	// property values.
	ErrBadProperty = errors.New("bad property")

	// ErrNoRoute is wrapped by every RouteError.
	ErrNoRoute = errors.New("no matching rule")
)

// RouteError reports a routing lookup that matched no rule of the local
// cell. For a valid cluster it indicates a placement inconsistency.
type RouteError struct {
	Op   string // "originCellID", "ruleNumber" or "nextSiloLocation"
	Key  int    // rule number or origin cellid
	Silo int
}

func (e *RouteError) Error() string {
	if e.Op == "nextSiloLocation" {
		return "nextSiloLocation: local cell has no rule"
	}
	return fmt.Sprintf("%s(%d, %d): %v", e.Op, e.Key, e.Silo, ErrNoRoute)
}

func (e *RouteError) Unwrap() error { return ErrNoRoute }

// PropertyChange describes one changed property of the local cell.
type PropertyChange struct {
	Property string
	Old      string
	New      string
}

// PropertyListener receives property changes of the local cell.
//
// PropertyChanged is called without the service lock held, from whichever
// goroutine is draining the notification queue. It may call the Service,
// but it should return promptly: other events wait behind it.
type PropertyListener interface {
	PropertyChanged(ev PropertyChange)
}

// ListenerFunc adapts a function to PropertyListener.
type ListenerFunc func(ev PropertyChange)

func (f ListenerFunc) PropertyChanged(ev PropertyChange) { f(ev) }

// ListenerID identifies a registered listener.
type ListenerID uint64

// Service is the topology API used by the rest of a cell.
//
// Mutations taking a versionMajor use it as the version of the new
// descriptor; a value <= 0 means the current version plus one.
type Service interface {
	Cells() []*cell.Cell
	Version() (major, minor int)
	MajorVersion() int
	// XMLConfig returns the client-facing descriptor document.
	XMLConfig() (string, error)

	LocalCellID() int
	AdminVIP() string
	DataVIP() string
	SPVIP() string
	Subnet() string
	Gateway() string
	ClusterName() string
	ServiceTagData() cell.ServiceTagData
	ServiceTagDataForAllCells() map[int]cell.ServiceTagData

	// IsCellMaster reports whether the local cellid is the smallest
	// configured cellid. Liveness is not considered.
	IsCellMaster() bool
	IsCellStandalone() bool

	OriginCellID(ruleNumber, silo int) (int, error)
	RuleNumber(originCellID, silo int) (int, error)
	NextSiloLocation(id string) (int, error)
	CurrentRuleNumber() int

	AddCell(ctx context.Context, c *cell.Cell, versionMajor int) error
	RemoveCell(ctx context.Context, cellID int, versionMajor int) error
	AddCells(ctx context.Context, cells []*cell.Cell, versionMajor int) error
	RemoveCells(ctx context.Context, cellIDs []int, versionMajor int) error
	UpdateProperties(ctx context.Context, cellID int, props map[string]string) error
	UpdateServiceTagData(ctx context.Context, cellID int, data cell.ServiceTagData) error
	// UpdateServiceTagDataForCells applies the service-tag data carried by
	// each cell to the configured cell with the same id.
	UpdateServiceTagDataForCells(ctx context.Context, cells []*cell.Cell) error

	AddPropertyListener(l PropertyListener) ListenerID
	RemovePropertyListener(id ListenerID) bool
}

// DefaultQueueSize bounds undelivered notifications.
const DefaultQueueSize = 64

// Options configures New.
type Options struct {
	// LocalCellID is nil on non-multi-cell deployments.
	LocalCellID *int
	Store       storage.Store
	Committer   membership.Committer
	// ClusterName overrides the local cell's domain name.
	ClusterName string
	// Name tags log lines, e.g. "celld".
	Name      string
	QueueSize int
}

// New returns an Inert service when no local cellid is configured, and a
// MultiCell loaded from opts.Store otherwise.
func New(opts Options) (Service, error) {
	if opts.LocalCellID == nil {
		return Inert{}, nil
	}
	return NewMultiCell(opts)
}
