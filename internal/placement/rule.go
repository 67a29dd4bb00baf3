package placement

import "fmt"

// Rule assigns the silo locations of an interval, under a given rule
// number, to an origin cell. A cell accumulates rules as the cluster is
// re-partitioned; older rules keep routing objects placed under them.
type Rule struct {
	OriginCellID int
	RuleNumber   int
	Interval     Interval
}

// NewRule builds a rule, validating its interval.
func NewRule(originCellID, ruleNumber, start, end, initialCapacity int) (Rule, error) {
	iv, err := NewInterval(start, end, initialCapacity)
	if err != nil {
		return Rule{}, err
	}
	return Rule{OriginCellID: originCellID, RuleNumber: ruleNumber, Interval: iv}, nil
}

// Matches reports whether the rule routes silo under ruleNumber.
func (r Rule) Matches(ruleNumber, silo int) bool {
	return r.RuleNumber == ruleNumber && r.Interval.Contains(silo)
}

// MatchesOrigin is the reverse of Matches, keyed by origin cell.
func (r Rule) MatchesOrigin(originCellID, silo int) bool {
	return r.OriginCellID == originCellID && r.Interval.Contains(silo)
}

func (r Rule) String() string {
	return fmt.Sprintf("rule %d origin=%d (%d, %d] cap=%d",
		r.RuleNumber, r.OriginCellID, r.Interval.Start(), r.Interval.End(), r.Interval.InitialCapacity())
}
