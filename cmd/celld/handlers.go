package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dreamware/multicell/internal/app"
	"github.com/dreamware/multicell/internal/cell"
	"github.com/dreamware/multicell/internal/cluster"
	"github.com/dreamware/multicell/internal/descriptor"
	"github.com/dreamware/multicell/internal/health"
	"github.com/dreamware/multicell/internal/placement"
	"github.com/dreamware/multicell/internal/topology"
)

type server struct {
	svc     topology.Service
	monitor *health.Monitor
}

func newServer(svc topology.Service, monitor *health.Monitor) *server {
	return &server{svc: svc, monitor: monitor}
}

type ruleSpec struct {
	OriginCellID    int `json:"origin_cellid"`
	RuleNumber      int `json:"rule_id"`
	Start           int `json:"start"`
	End             int `json:"end"`
	InitialCapacity int `json:"initial_capacity"`
}

type cellSpec struct {
	cluster.CellInfo
	Rules      []ruleSpec          `json:"rules,omitempty"`
	ServiceTag cell.ServiceTagData `json:"service_tag"`
}

func (c cellSpec) build() (*cell.Cell, error) {
	out := cell.New(c.ID, c.DomainName, c.AdminVIP, c.DataVIP, c.SPVIP, c.Subnet, c.Gateway)
	for _, r := range c.Rules {
		rule, err := placement.NewRule(r.OriginCellID, r.RuleNumber, r.Start, r.End, r.InitialCapacity)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", c.ID, err)
		}
		out.AddRule(rule)
	}
	out.SetServiceTag(c.ServiceTag)
	return out, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps topology errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, topology.ErrBadProperty), errors.Is(err, placement.ErrInvalidInterval):
		status = http.StatusBadRequest
	case errors.Is(err, topology.ErrNoRoute), errors.Is(err, descriptor.ErrUnknownCell):
		status = http.StatusNotFound
	case errors.Is(err, topology.ErrNotLocalCell), errors.Is(err, topology.ErrNotMulticell),
		errors.Is(err, descriptor.ErrDuplicateCell), errors.Is(err, descriptor.ErrNotStandalone):
		status = http.StatusConflict
	case errors.Is(err, descriptor.ErrMalformed):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, v, topology.ErrBadProperty)
	}
	return n, nil
}

// handleConfig serves the client-facing descriptor
func (s *server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc, err := s.svc.XMLConfig()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(doc))
}

// handleCells lists cells on GET and adds cells on POST
func (s *server) handleCells(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		major, minor := s.svc.Version()
		writeJSON(w, cluster.CellsResponse{
			VersionMajor: major,
			VersionMinor: minor,
			LocalCellID:  s.svc.LocalCellID(),
			ClusterName:  s.svc.ClusterName(),
			Standalone:   s.svc.IsCellStandalone(),
			Cells:        app.Infos(s.svc.Cells()),
		})
	case http.MethodPost:
		var req struct {
			Cells        []cellSpec `json:"cells"`
			VersionMajor int        `json:"version_major"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if len(req.Cells) == 0 {
			http.Error(w, "no cells", http.StatusBadRequest)
			return
		}
		cells := make([]*cell.Cell, 0, len(req.Cells))
		for _, spec := range req.Cells {
			c, err := spec.build()
			if err != nil {
				writeError(w, err)
				return
			}
			cells = append(cells, c)
		}
		var err error
		if len(cells) == 1 {
			err = s.svc.AddCell(r.Context(), cells[0], req.VersionMajor)
		} else {
			err = s.svc.AddCells(r.Context(), cells, req.VersionMajor)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRemoveCells removes cells by id (admin operation)
func (s *server) handleRemoveCells(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CellIDs      []int `json:"cellids"`
		VersionMajor int   `json:"version_major"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	var err error
	switch len(req.CellIDs) {
	case 0:
		http.Error(w, "no cellids", http.StatusBadRequest)
		return
	case 1:
		err = s.svc.RemoveCell(r.Context(), req.CellIDs[0], req.VersionMajor)
	default:
		err = s.svc.RemoveCells(r.Context(), req.CellIDs, req.VersionMajor)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProperties updates properties of one cell (admin operation)
func (s *server) handleProperties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CellID     int               `json:"cellid"`
		Properties map[string]string `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.svc.UpdateProperties(r.Context(), req.CellID, req.Properties); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleServiceTag updates the service-tag data of one cell (admin operation)
func (s *server) handleServiceTag(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.svc.ServiceTagDataForAllCells())
	case http.MethodPost:
		var req struct {
			CellID     int                 `json:"cellid"`
			ServiceTag cell.ServiceTagData `json:"service_tag"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := s.svc.UpdateServiceTagData(r.Context(), req.CellID, req.ServiceTag); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCellHealth returns probe results of all cells
func (s *server) handleCellHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.monitor.All())
}

// handleRoute resolves /route?rule=N&silo=S to an origin cell and
// /route?origin=C&silo=S to a rule number
func (s *server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	silo, err := intParam(r, "silo")
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("rule"):
		rule, err := intParam(r, "rule")
		if err != nil {
			writeError(w, err)
			return
		}
		origin, err := s.svc.OriginCellID(rule, silo)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]int{"origin_cellid": origin, "rule_id": rule, "silo": silo})
	case q.Has("origin"):
		origin, err := intParam(r, "origin")
		if err != nil {
			writeError(w, err)
			return
		}
		rule, err := s.svc.RuleNumber(origin, silo)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]int{"origin_cellid": origin, "rule_id": rule, "silo": silo})
	default:
		http.Error(w, "rule or origin required", http.StatusBadRequest)
	}
}

// handleSilo places /silo?id=X in the local cell's current rule
func (s *server) handleSilo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	silo, err := s.svc.NextSiloLocation(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct {
		ID     string `json:"id"`
		Silo   int    `json:"silo"`
		RuleID int    `json:"rule_id"`
	}{ID: id, Silo: silo, RuleID: s.svc.CurrentRuleNumber()})
}

// handleMaster reports whether this cell is the master cell
func (s *server) handleMaster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, struct {
		CellID     int  `json:"cellid"`
		Master     bool `json:"master"`
		Standalone bool `json:"standalone"`
	}{
		CellID:     s.svc.LocalCellID(),
		Master:     s.svc.IsCellMaster(),
		Standalone: s.svc.IsCellStandalone(),
	})
}
