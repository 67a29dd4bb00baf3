package descriptor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/placement"
)

// Element and attribute names of the descriptor document.
const (
	ElemRoot       = "Multicell"
	ElemCell       = "Cell"
	ElemRule       = "Rule"
	ElemServiceTag = "ServiceTag"

	AttrVersionMajor = "versionMajor"
	AttrVersionMinor = "versionMinor"

	AttrCellID     = "cellid"
	AttrDomainName = "domainName"
	AttrAdminVIP   = "adminVIP"
	AttrDataVIP    = "dataVIP"
	AttrSPVIP      = "spVIP"
	AttrSubnet     = "subnet"
	AttrGateway    = "gateway"

	AttrOriginCellID    = "originCellid"
	AttrRuleID          = "ruleId"
	AttrStart           = "start"
	AttrEnd             = "end"
	AttrInitialCapacity = "initialCapacity"

	AttrProductNum       = "productNum"
	AttrProductSerialNum = "productSerialNum"
	AttrMarketingNum     = "marketingNum"
	AttrInstanceURN      = "instanceURN"
)

var (
	cellAttrs       = []string{AttrCellID, AttrDomainName, AttrAdminVIP, AttrDataVIP, AttrSPVIP, AttrSubnet, AttrGateway}
	ruleAttrs       = []string{AttrOriginCellID, AttrRuleID, AttrStart, AttrEnd, AttrInitialCapacity}
	serviceTagAttrs = []string{AttrProductNum, AttrProductSerialNum, AttrMarketingNum, AttrInstanceURN}
)

// ErrMalformed is wrapped by every structural violation found in a
// descriptor document. A malformed document is rejected as a whole.
var ErrMalformed = errors.New("malformed descriptor")

// ParseError locates a structural violation in a descriptor document.
type ParseError struct {
	Line    int
	Element string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("descriptor line %d: <%s>: %s", e.Line, e.Element, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

// Document is a decoded descriptor.
type Document struct {
	VersionMajor int
	VersionMinor int
	Cells        []*cell.Cell
}

type decoder struct {
	d *xml.Decoder
}

func (p *decoder) fail(elem, reason string, err error) error {
	line, _ := p.d.InputPos()
	return &ParseError{Line: line, Element: elem, Reason: reason, Err: err}
}

// next returns the next start or end element, rejecting stray text.
func (p *decoder) next(within string) (xml.Token, error) {
	for {
		tok, err := p.d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			return nil, p.fail(within, "xml syntax", err)
		}
		switch t := tok.(type) {
		case xml.StartElement, xml.EndElement:
			return t, nil
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return nil, p.fail(within, fmt.Sprintf("unexpected text %q", strings.TrimSpace(string(t))), nil)
			}
		}
	}
}

// Decode parses a descriptor document.
//
// Parsing is strict: a Cell element carries exactly 7 attributes, a Rule
// exactly 5 and a ServiceTag exactly 4, every cell has exactly one
// ServiceTag, cell ids are unique and every interval is valid. Service-tag
// values "" and "null" decode as absent.
func Decode(r io.Reader) (*Document, error) {
	p := &decoder{d: xml.NewDecoder(r)}

	tok, err := p.next(ElemRoot)
	if err == io.EOF {
		return nil, p.fail(ElemRoot, "empty document", nil)
	}
	if err != nil {
		return nil, err
	}
	root, ok := tok.(xml.StartElement)
	if !ok || root.Name.Local != ElemRoot {
		return nil, p.fail(ElemRoot, "missing root element", nil)
	}

	doc := &Document{}
	seenMajor := false
	for _, a := range root.Attr {
		switch a.Name.Local {
		case AttrVersionMajor:
			if doc.VersionMajor, err = atoi(a.Value); err != nil {
				return nil, p.fail(ElemRoot, AttrVersionMajor, err)
			}
			seenMajor = true
		case AttrVersionMinor:
			if doc.VersionMinor, err = atoi(a.Value); err != nil {
				return nil, p.fail(ElemRoot, AttrVersionMinor, err)
			}
		default:
			return nil, p.fail(ElemRoot, fmt.Sprintf("unexpected attribute %q", a.Name.Local), nil)
		}
	}
	if !seenMajor {
		return nil, p.fail(ElemRoot, "missing "+AttrVersionMajor, nil)
	}

	ids := make(map[int]bool)
	for {
		tok, err := p.next(ElemRoot)
		if err == io.EOF {
			return nil, p.fail(ElemRoot, "unterminated root element", nil)
		}
		if err != nil {
			return nil, err
		}
		if _, ok := tok.(xml.EndElement); ok {
			break
		}
		se := tok.(xml.StartElement)
		if se.Name.Local != ElemCell {
			return nil, p.fail(se.Name.Local, "unexpected element", nil)
		}
		c, err := p.cell(se)
		if err != nil {
			return nil, err
		}
		if ids[c.ID] {
			return nil, p.fail(ElemCell, fmt.Sprintf("duplicate cellid %d", c.ID), nil)
		}
		ids[c.ID] = true
		doc.Cells = append(doc.Cells, c)
	}

	if _, err := p.next(ElemRoot); err != io.EOF {
		if err != nil {
			return nil, err
		}
		return nil, p.fail(ElemRoot, "content after root element", nil)
	}
	return doc, nil
}

func (p *decoder) attrs(se xml.StartElement, names []string) (map[string]string, error) {
	elem := se.Name.Local
	if len(se.Attr) != len(names) {
		return nil, p.fail(elem, fmt.Sprintf("expected %d attributes, found %d", len(names), len(se.Attr)), nil)
	}
	out := make(map[string]string, len(names))
	for _, a := range se.Attr {
		out[a.Name.Local] = a.Value
	}
	for _, n := range names {
		if _, ok := out[n]; !ok {
			return nil, p.fail(elem, "missing attribute "+n, nil)
		}
	}
	return out, nil
}

func (p *decoder) cell(se xml.StartElement) (*cell.Cell, error) {
	a, err := p.attrs(se, cellAttrs)
	if err != nil {
		return nil, err
	}
	id, err := atoi(a[AttrCellID])
	if err != nil || id < 0 {
		return nil, p.fail(ElemCell, "bad "+AttrCellID+" "+strconv.Quote(a[AttrCellID]), err)
	}
	c := cell.New(id, a[AttrDomainName], a[AttrAdminVIP], a[AttrDataVIP], a[AttrSPVIP], a[AttrSubnet], a[AttrGateway])

	tags := 0
	for {
		tok, err := p.next(ElemCell)
		if err == io.EOF {
			return nil, p.fail(ElemCell, "unterminated element", nil)
		}
		if err != nil {
			return nil, err
		}
		if _, ok := tok.(xml.EndElement); ok {
			break
		}
		child := tok.(xml.StartElement)
		switch child.Name.Local {
		case ElemRule:
			r, err := p.rule(child)
			if err != nil {
				return nil, err
			}
			c.AddRule(r)
		case ElemServiceTag:
			d, err := p.serviceTag(child)
			if err != nil {
				return nil, err
			}
			c.SetServiceTag(d)
			tags++
		default:
			return nil, p.fail(child.Name.Local, "unexpected element in cell", nil)
		}
		if err := p.leaf(child.Name.Local); err != nil {
			return nil, err
		}
	}
	if tags != 1 {
		return nil, p.fail(ElemCell, fmt.Sprintf("cell %d has %d %s elements, want 1", id, tags, ElemServiceTag), nil)
	}
	return c, nil
}

// leaf consumes the end of an element that must not have children.
func (p *decoder) leaf(elem string) error {
	tok, err := p.next(elem)
	if err == io.EOF {
		return p.fail(elem, "unterminated element", nil)
	}
	if err != nil {
		return err
	}
	if _, ok := tok.(xml.EndElement); !ok {
		return p.fail(elem, "unexpected child element", nil)
	}
	return nil
}

func (p *decoder) rule(se xml.StartElement) (placement.Rule, error) {
	a, err := p.attrs(se, ruleAttrs)
	if err != nil {
		return placement.Rule{}, err
	}
	var v [5]int
	for i, n := range ruleAttrs {
		if v[i], err = atoi(a[n]); err != nil {
			return placement.Rule{}, p.fail(ElemRule, "bad "+n, err)
		}
	}
	r, err := placement.NewRule(v[0], v[1], v[2], v[3], v[4])
	if err != nil {
		return placement.Rule{}, p.fail(ElemRule, "bad interval", err)
	}
	return r, nil
}

func (p *decoder) serviceTag(se xml.StartElement) (cell.ServiceTagData, error) {
	a, err := p.attrs(se, serviceTagAttrs)
	if err != nil {
		return cell.ServiceTagData{}, err
	}
	return cell.ServiceTagData{
		ProductNum:       nullable(a[AttrProductNum]),
		ProductSerialNum: nullable(a[AttrProductSerialNum]),
		MarketingNum:     nullable(a[AttrMarketingNum]),
		InstanceURN:      nullable(a[AttrInstanceURN]),
	}, nil
}

func nullable(v string) string {
	if v == "null" {
		return ""
	}
	return v
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// Encode writes the full server-side document for cells.
func Encode(w io.Writer, cells []*cell.Cell, versionMajor int) error {
	e := newEncoder(w)
	root := xml.StartElement{
		Name: xml.Name{Local: ElemRoot},
		Attr: []xml.Attr{attr(AttrVersionMajor, strconv.Itoa(versionMajor))},
	}
	e.start(root)
	for _, c := range cells {
		ce := xml.StartElement{Name: xml.Name{Local: ElemCell}, Attr: cellIdentity(c)}
		e.start(ce)
		for _, r := range c.Rules {
			e.leaf(ElemRule,
				attr(AttrOriginCellID, strconv.Itoa(r.OriginCellID)),
				attr(AttrRuleID, strconv.Itoa(r.RuleNumber)),
				attr(AttrStart, strconv.Itoa(r.Interval.Start())),
				attr(AttrEnd, strconv.Itoa(r.Interval.End())),
				attr(AttrInitialCapacity, strconv.Itoa(r.Interval.InitialCapacity())),
			)
		}
		e.leaf(ElemServiceTag,
			attr(AttrProductNum, c.ServiceTag.ProductNum),
			attr(AttrProductSerialNum, c.ServiceTag.ProductSerialNum),
			attr(AttrMarketingNum, c.ServiceTag.MarketingNum),
			attr(AttrInstanceURN, c.ServiceTag.InstanceURN),
		)
		e.end(ce)
	}
	e.end(root)
	return e.flush()
}

// EncodeClient writes the reduced projection served to clients: the
// version header and each cell's identity and endpoint attributes, without
// rules or service-tag data.
func EncodeClient(w io.Writer, cells []*cell.Cell, versionMajor, versionMinor int) error {
	e := newEncoder(w)
	root := xml.StartElement{
		Name: xml.Name{Local: ElemRoot},
		Attr: []xml.Attr{
			attr(AttrVersionMajor, strconv.Itoa(versionMajor)),
			attr(AttrVersionMinor, strconv.Itoa(versionMinor)),
		},
	}
	e.start(root)
	for _, c := range cells {
		e.leaf(ElemCell, cellIdentity(c)...)
	}
	e.end(root)
	return e.flush()
}

func cellIdentity(c *cell.Cell) []xml.Attr {
	return []xml.Attr{
		attr(AttrCellID, strconv.Itoa(c.ID)),
		attr(AttrDomainName, c.DomainName),
		attr(AttrAdminVIP, c.AdminVIP),
		attr(AttrDataVIP, c.DataVIP),
		attr(AttrSPVIP, c.SPVIP),
		attr(AttrSubnet, c.Subnet),
		attr(AttrGateway, c.Gateway),
	}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// encoder keeps the first error and turns the rest of the writes into
// no-ops, so document construction reads top to bottom.
type encoder struct {
	w   io.Writer
	enc *xml.Encoder
	err error
}

func newEncoder(w io.Writer) *encoder {
	e := &encoder{w: w}
	_, e.err = io.WriteString(w, xml.Header)
	e.enc = xml.NewEncoder(w)
	e.enc.Indent("", "  ")
	return e
}

func (e *encoder) start(se xml.StartElement) {
	if e.err == nil {
		e.err = e.enc.EncodeToken(se)
	}
}

func (e *encoder) end(se xml.StartElement) {
	if e.err == nil {
		e.err = e.enc.EncodeToken(se.End())
	}
}

func (e *encoder) leaf(name string, attrs ...xml.Attr) {
	se := xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}
	e.start(se)
	e.end(se)
}

func (e *encoder) flush() error {
	if e.err == nil {
		e.err = e.enc.Flush()
	}
	if e.err == nil {
		_, e.err = io.WriteString(e.w, "\n")
	}
	return e.err
}
