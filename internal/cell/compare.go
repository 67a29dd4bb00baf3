package cell

import (
	"fmt"
	"strconv"
)

// Mismatch names the first field in which two cells that were expected to
// be identical differ.
type Mismatch struct {
	CellID   int
	Field    string
	Expected string
	Actual   string
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("cell %d: %s mismatch: expected %q, got %q",
		m.CellID, m.Field, m.Expected, m.Actual)
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b *Cell) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.DomainName == b.DomainName && Explain(a, b) == nil
}

// EqualAll compares two cell lists element-wise, in order.
func EqualAll(a, b []*Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Explain compares the cell expected by the caller with the actual one and
// describes the first difference, or returns nil when they agree.
//
// Fields are checked in a fixed order: adminVIP, dataVIP, spVIP, subnet,
// gateway, rule count, each rule pairwise, then service-tag data. The
// domain name is not part of the comparison.
func Explain(expected, actual *Cell) *Mismatch {
	if expected == nil || actual == nil {
		if expected == actual {
			return nil
		}
		return &Mismatch{Field: "cell", Expected: present(expected), Actual: present(actual)}
	}
	id := expected.ID
	if expected.ID != actual.ID {
		return &Mismatch{
			CellID:   id,
			Field:    "cellid",
			Expected: strconv.Itoa(expected.ID),
			Actual:   strconv.Itoa(actual.ID),
		}
	}

	fields := []struct {
		name     string
		exp, act string
	}{
		{"adminVIP", expected.AdminVIP, actual.AdminVIP},
		{"dataVIP", expected.DataVIP, actual.DataVIP},
		{"spVIP", expected.SPVIP, actual.SPVIP},
		{"subnet", expected.Subnet, actual.Subnet},
		{"gateway", expected.Gateway, actual.Gateway},
	}
	for _, f := range fields {
		if f.exp != f.act {
			return &Mismatch{CellID: id, Field: f.name, Expected: f.exp, Actual: f.act}
		}
	}

	if len(expected.Rules) != len(actual.Rules) {
		return &Mismatch{
			CellID:   id,
			Field:    "rule count",
			Expected: strconv.Itoa(len(expected.Rules)),
			Actual:   strconv.Itoa(len(actual.Rules)),
		}
	}
	for i := range expected.Rules {
		if expected.Rules[i] != actual.Rules[i] {
			return &Mismatch{
				CellID:   id,
				Field:    fmt.Sprintf("rule[%d]", i),
				Expected: expected.Rules[i].String(),
				Actual:   actual.Rules[i].String(),
			}
		}
	}

	if expected.ServiceTag != actual.ServiceTag {
		return &Mismatch{
			CellID:   id,
			Field:    "serviceTag",
			Expected: fmt.Sprintf("%+v", expected.ServiceTag),
			Actual:   fmt.Sprintf("%+v", actual.ServiceTag),
		}
	}
	return nil
}

func present(c *Cell) string {
	if c == nil {
		return "<none>"
	}
	return strconv.Itoa(c.ID)
}
