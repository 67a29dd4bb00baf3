package cell

import (
	"errors"
	"fmt"

	"github.com/dreamware/multicell/internal/placement"
)

// ErrNotStandaloneRule is returned by ResetCellID when the cell does not
// carry exactly one rule. Cell ids are only reassigned while a standalone
// cell joins a multi-cell cluster.
var ErrNotStandaloneRule = errors.New("cell id reset requires exactly one rule")

// ServiceTagData identifies the hardware and entitlement behind a cell.
// Each field is independently optional; the empty string means absent.
type ServiceTagData struct {
	ProductNum       string `json:"productNum,omitempty"`
	ProductSerialNum string `json:"productSerialNum,omitempty"`
	MarketingNum     string `json:"marketingNum,omitempty"`
	InstanceURN      string `json:"instanceURN,omitempty"`
}

// IsZero reports whether no service-tag field is set.
func (d ServiceTagData) IsZero() bool {
	return d == ServiceTagData{}
}

func (d ServiceTagData) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", d.ProductNum, d.ProductSerialNum, d.MarketingNum, d.InstanceURN)
}

// Cell is one independently operated unit of the storage cluster: its
// identity, network endpoints, routing rules and service-tag metadata.
//
// Rules are kept in insertion order, which is the history of the
// re-partitioning events the cell went through. Lookups scan them in that
// order and the first match wins.
type Cell struct {
	ID         int
	DomainName string
	AdminVIP   string
	DataVIP    string
	SPVIP      string
	Subnet     string
	Gateway    string
	Rules      []placement.Rule
	ServiceTag ServiceTagData
}

// New returns a cell with the given identity and endpoints and no rules.
func New(id int, domainName, adminVIP, dataVIP, spVIP, subnet, gateway string) *Cell {
	return &Cell{
		ID:         id,
		DomainName: domainName,
		AdminVIP:   adminVIP,
		DataVIP:    dataVIP,
		SPVIP:      spVIP,
		Subnet:     subnet,
		Gateway:    gateway,
	}
}

// AddRule appends r to the cell's rule history.
func (c *Cell) AddRule(r placement.Rule) {
	c.Rules = append(c.Rules, r)
}

func (c *Cell) SetAdminVIP(v string) { c.AdminVIP = v }
func (c *Cell) SetDataVIP(v string)  { c.DataVIP = v }
func (c *Cell) SetSPVIP(v string)    { c.SPVIP = v }
func (c *Cell) SetSubnet(v string)   { c.Subnet = v }
func (c *Cell) SetGateway(v string)  { c.Gateway = v }

// SetServiceTag replaces the whole service-tag record.
func (c *Cell) SetServiceTag(data ServiceTagData) {
	c.ServiceTag = data
}

// ResetCellID gives the cell a new id and re-origins its single rule.
func (c *Cell) ResetCellID(newID int) error {
	if len(c.Rules) != 1 {
		return fmt.Errorf("cell %d has %d rules: %w", c.ID, len(c.Rules), ErrNotStandaloneRule)
	}
	c.ID = newID
	c.Rules[0].OriginCellID = newID
	return nil
}

// OriginCellFor returns the origin cell of the first rule matching
// (ruleNumber, silo). The boolean is false when no rule matches.
func (c *Cell) OriginCellFor(ruleNumber, silo int) (int, bool) {
	for _, r := range c.Rules {
		if r.Matches(ruleNumber, silo) {
			return r.OriginCellID, true
		}
	}
	return 0, false
}

// RuleNumberFor returns the rule number of the first rule owned by
// originCellID that covers silo.
func (c *Cell) RuleNumberFor(originCellID, silo int) (int, bool) {
	for _, r := range c.Rules {
		if r.MatchesOrigin(originCellID, silo) {
			return r.RuleNumber, true
		}
	}
	return 0, false
}

// MasterRule returns the rule new objects of this cell are placed under:
// the newest rule originating at the cell, else the newest rule.
func (c *Cell) MasterRule() (placement.Rule, bool) {
	for i := len(c.Rules) - 1; i >= 0; i-- {
		if c.Rules[i].OriginCellID == c.ID {
			return c.Rules[i], true
		}
	}
	if len(c.Rules) == 0 {
		return placement.Rule{}, false
	}
	return c.Rules[len(c.Rules)-1], true
}

// Clone returns a deep copy of c.
func (c *Cell) Clone() *Cell {
	if c == nil {
		return nil
	}
	out := *c
	out.Rules = append([]placement.Rule(nil), c.Rules...)
	return &out
}

func (c *Cell) String() string {
	return fmt.Sprintf("cell %d (admin=%s data=%s sp=%s rules=%d)",
		c.ID, c.AdminVIP, c.DataVIP, c.SPVIP, len(c.Rules))
}

// CloneAll deep-copies a cell list.
func CloneAll(cells []*Cell) []*Cell {
	out := make([]*Cell, len(cells))
	for i, c := range cells {
		out[i] = c.Clone()
	}
	return out
}
