package topology

import (
	"context"

	"github.com/dreamware/multicell/internal/cell"
)

// Inert is the Service of a process without a local cellid. It never
// reads the descriptor.
type Inert struct{}

var _ Service = Inert{}

func (Inert) Cells() []*cell.Cell                                    { return nil }
func (Inert) Version() (int, int)                                    { return 0, 0 }
func (Inert) MajorVersion() int                                      { return 0 }
func (Inert) XMLConfig() (string, error)                             { return "", nil }
func (Inert) LocalCellID() int                                       { return 0 }
func (Inert) AdminVIP() string                                       { return "" }
func (Inert) DataVIP() string                                        { return "" }
func (Inert) SPVIP() string                                          { return "" }
func (Inert) Subnet() string                                         { return "" }
func (Inert) Gateway() string                                        { return "" }
func (Inert) ClusterName() string                                    { return "" }
func (Inert) ServiceTagData() cell.ServiceTagData                    { return cell.ServiceTagData{} }
func (Inert) ServiceTagDataForAllCells() map[int]cell.ServiceTagData { return nil }
func (Inert) IsCellMaster() bool                                     { return true }
func (Inert) IsCellStandalone() bool                                 { return true }
func (Inert) OriginCellID(int, int) (int, error)                     { return 0, nil }
func (Inert) RuleNumber(int, int) (int, error)                       { return 0, nil }
func (Inert) NextSiloLocation(string) (int, error)                   { return 0, nil }
func (Inert) CurrentRuleNumber() int                                 { return 0 }

func (Inert) AddCell(context.Context, *cell.Cell, int) error { return ErrNotMulticell }
func (Inert) RemoveCell(context.Context, int, int) error     { return ErrNotMulticell }
func (Inert) AddCells(context.Context, []*cell.Cell, int) error {
	return ErrNotMulticell
}
func (Inert) RemoveCells(context.Context, []int, int) error { return ErrNotMulticell }
func (Inert) UpdateProperties(context.Context, int, map[string]string) error {
	return ErrNotMulticell
}
func (Inert) UpdateServiceTagData(context.Context, int, cell.ServiceTagData) error {
	return ErrNotMulticell
}
func (Inert) UpdateServiceTagDataForCells(context.Context, []*cell.Cell) error {
	return ErrNotMulticell
}

func (Inert) AddPropertyListener(PropertyListener) ListenerID { return 0 }
func (Inert) RemovePropertyListener(ListenerID) bool          { return false }
