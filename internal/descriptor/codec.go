package descriptor

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/exp/slices"

	"github.com/dreamware/multicell/internal/cell"
)

var (
	// ErrUnknownCell is returned by mutation helpers addressing a cellid
	// that is not part of the topology.
	ErrUnknownCell = errors.New("unknown cell")

	// ErrDuplicateCell is returned when adding a cell whose id is taken.
	ErrDuplicateCell = errors.New("duplicate cell")

	// ErrNotStandalone is returned when a setup cell is staged on a
	// topology that is not a single cell with a single rule.
	ErrNotStandalone = errors.New("topology is not standalone")
)

// Setup is the identity a standalone cell takes when it is provisioned
// into a multi-cell cluster. An empty DomainName keeps the current one.
type Setup struct {
	CellID     int
	DomainName string
	AdminVIP   string
	DataVIP    string
	SPVIP      string
	Subnet     string
	Gateway    string
}

// Codec holds the committed cell list parsed from the descriptor file,
// applies in-memory mutations to it, and serializes it back.
//
// Codec does not lock. Its owner serializes every call.
type Codec struct {
	cells  []*cell.Cell
	major  int
	minor  int
	loaded bool

	// setup is a staged re-provisioning of the local cell, consumed by
	// the next Authoritative call.
	setup *cell.Cell
}

// NewCodec returns a codec with an empty topology.
func NewCodec() *Codec {
	return &Codec{}
}

// Parse decodes a descriptor and adopts it as the committed topology.
//
// The boolean reports whether the parse is a trustworthy change. When the
// previous and the new topology are both standalone but name different
// cells, the parse is most likely observing a local setup that has not
// completed; the previous topology is kept and Parse reports false.
func (c *Codec) Parse(r io.Reader) ([]*cell.Cell, bool, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, false, err
	}
	if c.loaded && len(c.cells) == 1 && len(doc.Cells) == 1 && c.cells[0].ID != doc.Cells[0].ID {
		return cell.CloneAll(c.cells), false, nil
	}
	c.cells = doc.Cells
	c.major = doc.VersionMajor
	c.minor = doc.VersionMinor
	c.loaded = true
	return cell.CloneAll(c.cells), true, nil
}

// Write encodes the authoritative topology as the server-side document.
// A staged setup cell is consumed by this call.
func (c *Codec) Write(w io.Writer, versionMajor int) error {
	return Encode(w, c.Authoritative(), versionMajor)
}

// WriteClient encodes the committed topology as the client projection.
func (c *Codec) WriteClient(w io.Writer, versionMajor, versionMinor int) error {
	return EncodeClient(w, c.cells, versionMajor, versionMinor)
}

// Cells returns a copy of the committed cell list.
func (c *Codec) Cells() []*cell.Cell {
	return cell.CloneAll(c.cells)
}

// Cell returns a copy of the committed cell with the given id.
func (c *Codec) Cell(id int) (*cell.Cell, bool) {
	i := c.index(id)
	if i < 0 {
		return nil, false
	}
	return c.cells[i].Clone(), true
}

func (c *Codec) VersionMajor() int { return c.major }
func (c *Codec) VersionMinor() int { return c.minor }

// Adopt makes cells, just handed off for commit as versionMajor, the
// committed topology. A staged setup cell written by Authoritative thereby
// stays visible until the descriptor naming it is parsed.
func (c *Codec) Adopt(cells []*cell.Cell, versionMajor int) {
	c.cells = cell.CloneAll(cells)
	c.major, c.minor = versionMajor, 0
	c.loaded = true
}

// TrustNextParse lifts the standalone cellid guard for the next Parse, so
// the descriptor on disk is adopted whatever cell it names.
func (c *Codec) TrustNextParse() {
	c.loaded = false
}

// IsStandalone reports whether the committed topology has a single cell.
func (c *Codec) IsStandalone() bool {
	return len(c.cells) == 1
}

func (c *Codec) index(id int) int {
	return slices.IndexFunc(c.cells, func(x *cell.Cell) bool { return x.ID == id })
}

// AddCell appends a copy of nc to the committed list.
func (c *Codec) AddCell(nc *cell.Cell) error {
	if c.index(nc.ID) >= 0 {
		return fmt.Errorf("cell %d: %w", nc.ID, ErrDuplicateCell)
	}
	c.cells = append(c.cells, nc.Clone())
	return nil
}

// RemoveCell drops the cell with the given id.
func (c *Codec) RemoveCell(id int) error {
	i := c.index(id)
	if i < 0 {
		return fmt.Errorf("cell %d: %w", id, ErrUnknownCell)
	}
	c.cells = slices.Delete(c.cells, i, i+1)
	return nil
}

func (c *Codec) update(id int, fn func(*cell.Cell)) error {
	i := c.index(id)
	if i < 0 {
		return fmt.Errorf("cell %d: %w", id, ErrUnknownCell)
	}
	fn(c.cells[i])
	return nil
}

func (c *Codec) SetAdminVIP(id int, v string) error {
	return c.update(id, func(x *cell.Cell) { x.SetAdminVIP(v) })
}

func (c *Codec) SetDataVIP(id int, v string) error {
	return c.update(id, func(x *cell.Cell) { x.SetDataVIP(v) })
}

func (c *Codec) SetSPVIP(id int, v string) error {
	return c.update(id, func(x *cell.Cell) { x.SetSPVIP(v) })
}

func (c *Codec) SetSubnet(id int, v string) error {
	return c.update(id, func(x *cell.Cell) { x.SetSubnet(v) })
}

func (c *Codec) SetGateway(id int, v string) error {
	return c.update(id, func(x *cell.Cell) { x.SetGateway(v) })
}

func (c *Codec) SetDomainName(id int, v string) error {
	return c.update(id, func(x *cell.Cell) { x.DomainName = v })
}

func (c *Codec) SetServiceTag(id int, data cell.ServiceTagData) error {
	return c.update(id, func(x *cell.Cell) { x.SetServiceTag(data) })
}

// StageSetupCell stages the re-provisioned identity of the single local
// cell. The staged cell keeps the existing service-tag data and its single
// rule is re-origined to the new cellid. It replaces any earlier stage.
func (c *Codec) StageSetupCell(s Setup) error {
	if len(c.cells) != 1 || len(c.cells[0].Rules) != 1 {
		rules := 0
		if len(c.cells) == 1 {
			rules = len(c.cells[0].Rules)
		}
		return fmt.Errorf("%d cells, %d rules: %w", len(c.cells), rules, ErrNotStandalone)
	}
	staged := c.cells[0].Clone()
	if err := staged.ResetCellID(s.CellID); err != nil {
		return err
	}
	if s.DomainName != "" {
		staged.DomainName = s.DomainName
	}
	staged.SetAdminVIP(s.AdminVIP)
	staged.SetDataVIP(s.DataVIP)
	staged.SetSPVIP(s.SPVIP)
	staged.SetSubnet(s.Subnet)
	staged.SetGateway(s.Gateway)
	c.setup = staged
	return nil
}

// HasSetup reports whether a setup cell is staged.
func (c *Codec) HasSetup() bool {
	return c.setup != nil
}

// Authoritative returns the staged setup cell as a singleton list and
// clears the stage, or the committed list when nothing is staged.
func (c *Codec) Authoritative() []*cell.Cell {
	if c.setup != nil {
		staged := c.setup
		c.setup = nil
		return []*cell.Cell{staged}
	}
	return cell.CloneAll(c.cells)
}
