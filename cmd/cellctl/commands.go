package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/dreamware/multicell/internal/app"
	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/cluster"
	"github.com/dreamware/multicell/internal/descriptor"
	"github.com/dreamware/multicell/internal/journal"
	"github.com/dreamware/multicell/internal/placement"
	"github.com/dreamware/multicell/internal/topology"
)

// errDiverged is returned by explain when the descriptors differ.
var errDiverged = errors.New("descriptors diverge")

// parseRule parses origin:number:start:end[:capacity].
func parseRule(s string) (placement.Rule, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 && len(parts) != 5 {
		return placement.Rule{}, fmt.Errorf("rule %q: want origin:number:start:end[:capacity]", s)
	}
	n := make([]int, 5)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return placement.Rule{}, fmt.Errorf("rule %q: %w", s, err)
		}
		n[i] = v
	}
	return placement.NewRule(n[0], n[1], n[2], n[3], n[4])
}

type endpointFlags struct {
	domain, admin, data, sp, subnet, gateway string
}

func (e *endpointFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&e.domain, "domain", "", "Domain name")
	cmd.Flags().StringVar(&e.admin, "admin-vip", "", "Admin VIP")
	cmd.Flags().StringVar(&e.data, "data-vip", "", "Data VIP")
	cmd.Flags().StringVar(&e.sp, "sp-vip", "", "Service processor VIP")
	cmd.Flags().StringVar(&e.subnet, "subnet", "", "Subnet")
	cmd.Flags().StringVar(&e.gateway, "gateway", "", "Gateway")
}

func (e *endpointFlags) cell(id int) *cell.Cell {
	return cell.New(id, e.domain, e.admin, e.data, e.sp, e.subnet, e.gateway)
}

func newInitCmd(opts *options) *cobra.Command {
	var (
		ep       endpointFlags
		start    int
		end      int
		capacity int
		version  int
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the first descriptor of a standalone cell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if !cfg.Multicell() {
				return errors.New("init needs a local cellid")
			}
			id := *cfg.LocalCellID
			c := ep.cell(id)
			rule, err := placement.NewRule(id, 1, start, end, capacity)
			if err != nil {
				return err
			}
			c.AddRule(rule)
			if err := app.Init(cfg, c, version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized cell %d in %s\n", id, cfg.Dir)
			return nil
		},
	}
	ep.register(cmd)
	cmd.Flags().IntVar(&start, "start", placement.SpaceMin, "Start of the first rule's interval (exclusive)")
	cmd.Flags().IntVar(&end, "end", 32700, "End of the first rule's interval (inclusive)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "Initial capacity of the first rule")
	cmd.Flags().IntVar(&version, "version", 1, "Descriptor major version")
	return cmd
}

type ruleView struct {
	OriginCellID    int `json:"originCellid"`
	RuleID          int `json:"ruleId"`
	Start           int `json:"start"`
	End             int `json:"end"`
	InitialCapacity int `json:"initialCapacity"`
}

type cellView struct {
	ID         int                 `json:"cellid"`
	DomainName string              `json:"domainName"`
	AdminVIP   string              `json:"adminVIP"`
	DataVIP    string              `json:"dataVIP"`
	SPVIP      string              `json:"spVIP"`
	Subnet     string              `json:"subnet"`
	Gateway    string              `json:"gateway"`
	Rules      []ruleView          `json:"rules"`
	ServiceTag cell.ServiceTagData `json:"serviceTag"`
}

type topologyView struct {
	VersionMajor int        `json:"versionMajor"`
	VersionMinor int        `json:"versionMinor"`
	LocalCellID  int        `json:"localCellid"`
	Master       bool       `json:"master"`
	Standalone   bool       `json:"standalone"`
	Cells        []cellView `json:"cells"`
}

func viewOf(svc topology.Service) topologyView {
	v := topologyView{
		LocalCellID: svc.LocalCellID(),
		Master:      svc.IsCellMaster(),
		Standalone:  svc.IsCellStandalone(),
		Cells:       []cellView{},
	}
	v.VersionMajor, v.VersionMinor = svc.Version()
	for _, c := range svc.Cells() {
		cv := cellView{
			ID:         c.ID,
			DomainName: c.DomainName,
			AdminVIP:   c.AdminVIP,
			DataVIP:    c.DataVIP,
			SPVIP:      c.SPVIP,
			Subnet:     c.Subnet,
			Gateway:    c.Gateway,
			Rules:      []ruleView{},
			ServiceTag: c.ServiceTag,
		}
		for _, r := range c.Rules {
			cv.Rules = append(cv.Rules, ruleView{
				OriginCellID:    r.OriginCellID,
				RuleID:          r.RuleNumber,
				Start:           r.Interval.Start(),
				End:             r.Interval.End(),
				InitialCapacity: r.Interval.InitialCapacity(),
			})
		}
		v.Cells = append(v.Cells, cv)
	}
	return v
}

func newShowCmd(opts *options) *cobra.Command {
	var (
		asJSON bool
		query  string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the topology",
		Long: `Print the client-facing descriptor, or with --json the full topology.
--query selects parts of the JSON form with a JSONPath expression, e.g.
  cellctl show --query '$.cells[?(@.cellid > 1)].adminVIP'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if !asJSON && query == "" {
				doc, err := a.Service.XMLConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, doc)
				return nil
			}

			raw, err := json.Marshal(viewOf(a.Service))
			if err != nil {
				return err
			}
			data, err := oj.ParseString(string(raw))
			if err != nil {
				return err
			}
			pretty := &ojg.Options{Indent: 2, Sort: true}
			if query == "" {
				fmt.Fprintln(out, oj.JSON(data, pretty))
				return nil
			}
			x, err := jp.ParseString(query)
			if err != nil {
				return fmt.Errorf("invalid query %q: %w", query, err)
			}
			for _, r := range x.Get(data) {
				fmt.Fprintln(out, oj.JSON(r, pretty))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full topology as JSON")
	cmd.Flags().StringVarP(&query, "query", "q", "", "JSONPath expression applied to the JSON form")
	return cmd
}

func newRouteCmd(opts *options) *cobra.Command {
	var rule, origin, silo int
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Resolve the origin cell of a rule, or the rule of an origin cell, at a silo location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			byRule, byOrigin := cmd.Flags().Changed("rule"), cmd.Flags().Changed("origin")
			if byRule == byOrigin {
				return errors.New("exactly one of --rule and --origin is required")
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if byRule {
				origin, err = a.Service.OriginCellID(rule, silo)
			} else {
				rule, err = a.Service.RuleNumber(origin, silo)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "silo %d: rule %d, origin cell %d\n", silo, rule, origin)
			return nil
		},
	}
	cmd.Flags().IntVar(&rule, "rule", 0, "Rule number")
	cmd.Flags().IntVar(&origin, "origin", 0, "Origin cellid")
	cmd.Flags().IntVar(&silo, "silo", 0, "Silo location")
	_ = cmd.MarkFlagRequired("silo")
	return cmd
}

func newSiloCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "silo ID...",
		Short: "Place object ids in the local cell's current rule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSILO\tRULE")
			for _, id := range args {
				silo, err := a.Service.NextSiloLocation(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\n", id, silo, a.Service.CurrentRuleNumber())
			}
			return w.Flush()
		},
	}
}

func newAddCellCmd(opts *options) *cobra.Command {
	var (
		ep      endpointFlags
		rules   []string
		tag     cell.ServiceTagData
		version int
	)
	cmd := &cobra.Command{
		Use:   "add-cell CELLID",
		Short: "Add a cell to the topology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("cellid %q: %w", args[0], err)
			}
			c := ep.cell(id)
			for _, s := range rules {
				r, err := parseRule(s)
				if err != nil {
					return err
				}
				c.AddRule(r)
			}
			c.SetServiceTag(tag)

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Service.AddCell(cmd.Context(), c, version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added cell %d, version %d\n", id, a.Service.MajorVersion())
			return nil
		},
	}
	ep.register(cmd)
	registerTagFlags(cmd, &tag)
	cmd.Flags().StringArrayVar(&rules, "rule", nil, "Rule as origin:number:start:end[:capacity], repeatable")
	cmd.Flags().IntVar(&version, "version", 0, "Descriptor major version (default current+1)")
	return cmd
}

func newRmCellCmd(opts *options) *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "rm-cell CELLID...",
		Short: "Remove cells from the topology",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, s := range args {
				id, err := strconv.Atoi(s)
				if err != nil {
					return fmt.Errorf("cellid %q: %w", s, err)
				}
				ids = append(ids, id)
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if len(ids) == 1 {
				err = a.Service.RemoveCell(cmd.Context(), ids[0], version)
			} else {
				err = a.Service.RemoveCells(cmd.Context(), ids, version)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cell(s), version %d\n", len(ids), a.Service.MajorVersion())
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "Descriptor major version (default current+1)")
	return cmd
}

func newSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set CELLID KEY=VALUE...",
		Short: "Update properties of a cell",
		Long: `Update properties of a cell. Keys: domainName, adminVIP, dataVIP, spVIP,
subnet, gateway. Setting cellid on the local standalone cell re-provisions it.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("cellid %q: %w", args[0], err)
			}
			props := make(map[string]string, len(args)-1)
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("%q: want KEY=VALUE", kv)
				}
				props[k] = v
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Service.UpdateProperties(cmd.Context(), id, props); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated cell %d, version %d\n", id, a.Service.MajorVersion())
			return nil
		},
	}
}

func registerTagFlags(cmd *cobra.Command, tag *cell.ServiceTagData) {
	cmd.Flags().StringVar(&tag.ProductNum, "product", "", "Service tag product number")
	cmd.Flags().StringVar(&tag.ProductSerialNum, "serial", "", "Service tag product serial number")
	cmd.Flags().StringVar(&tag.MarketingNum, "marketing", "", "Service tag marketing number")
	cmd.Flags().StringVar(&tag.InstanceURN, "urn", "", "Service tag instance URN")
}

func newSetTagCmd(opts *options) *cobra.Command {
	var tag cell.ServiceTagData
	cmd := &cobra.Command{
		Use:   "set-tag CELLID",
		Short: "Replace the service-tag data of a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("cellid %q: %w", args[0], err)
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Service.UpdateServiceTagData(cmd.Context(), id, tag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated service tag of cell %d, version %d\n", id, a.Service.MajorVersion())
			return nil
		},
	}
	registerTagFlags(cmd, &tag)
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List descriptor versions committed by this cell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			path := cfg.JournalPath()
			if path == "" {
				return errors.New("no journal configured")
			}
			j, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tVERSION\tCALLER\tCELL\tCOMMITTED\tFILE")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\n",
					e.Seq, e.VersionMajor, e.Caller, e.CellID, e.CommittedAt.Format(time.RFC3339), e.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries, 0 for all")
	return cmd
}

func newExplainCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "explain FILE",
		Short: "Report the first difference between the local topology and another descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			doc, err := descriptor.Decode(f)
			f.Close()
			if err != nil {
				return err
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			actual := make(map[int]*cell.Cell)
			for _, c := range a.Service.Cells() {
				actual[c.ID] = c
			}
			out := cmd.OutOrStdout()
			diverged := len(doc.Cells) != len(actual)
			for _, expected := range doc.Cells {
				if m := cell.Explain(expected, actual[expected.ID]); m != nil {
					fmt.Fprintln(out, m.Error())
					diverged = true
				}
				delete(actual, expected.ID)
			}
			for id := range actual {
				fmt.Fprintf(out, "cell %d: only in the local topology\n", id)
			}
			if diverged {
				return errDiverged
			}
			fmt.Fprintf(out, "%d cell(s) identical\n", len(doc.Cells))
			return nil
		},
	}
}

func newPeerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peer URL",
		Short: "List the topology served by another cell's celld",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp cluster.CellsResponse
			if err := cluster.GetJSON(cmd.Context(), strings.TrimRight(args[0], "/")+"/cells", &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cell %d of %q, version %d.%d\n",
				resp.LocalCellID, resp.ClusterName, resp.VersionMajor, resp.VersionMinor)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CELLID\tDOMAIN\tADMIN\tDATA\tSP")
			for _, c := range resp.Cells {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.DomainName, c.AdminVIP, c.DataVIP, c.SPVIP)
			}
			return w.Flush()
		},
	}
}
