package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CellInfo is the JSON view of a cell served to operators and peers.
type CellInfo struct {
	ID         int    `json:"cellid"`
	DomainName string `json:"domain_name"`
	AdminVIP   string `json:"admin_vip"`
	DataVIP    string `json:"data_vip"`
	SPVIP      string `json:"sp_vip"`
	Subnet     string `json:"subnet,omitempty"`
	Gateway    string `json:"gateway,omitempty"`
}

// CellsResponse is the topology listing a cell serves at /cells.
type CellsResponse struct {
	VersionMajor int        `json:"version_major"`
	VersionMinor int        `json:"version_minor"`
	LocalCellID  int        `json:"local_cellid"`
	ClusterName  string     `json:"cluster_name"`
	Standalone   bool       `json:"standalone"`
	Cells        []CellInfo `json:"cells"`
}

// StoreConfigRequest hands a new descriptor version to the membership
// service for a cluster-wide commit.
type StoreConfigRequest struct {
	Caller       string `json:"caller"`
	CellID       int    `json:"cellid"`
	VersionMajor int    `json:"version_major"`
	Name         string `json:"name"`
	Descriptor   []byte `json:"descriptor"`
}

// StoreConfigResponse acknowledges a committed descriptor version.
type StoreConfigResponse struct {
	VersionMajor int `json:"version_major"`
	VersionMinor int `json:"version_minor"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %s: %d", e.URL, e.Status)
	}
	return fmt.Sprintf("http %s: %d: %s", e.URL, e.Status, e.Body)
}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(req, out)
}

func do(req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
