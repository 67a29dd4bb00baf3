// Package cluster holds the wire types and HTTP/JSON helpers cells use to
// talk to each other and to the membership service.
//
// # Overview
//
// Topology changes are prepared locally and then handed off:
//
//	┌───────────┐  POST /store-config   ┌────────────────────┐
//	│  cell 1   │ ────────────────────▶ │ membership service │
//	│ (mutator) │   StoreConfigRequest  │  (external)        │
//	└───────────┘                       └─────────┬──────────┘
//	                                              │ installs the new
//	                               ┌──────────────┼──────────────┐
//	                               ▼              ▼              ▼
//	                         ┌──────────┐   ┌──────────┐   ┌──────────┐
//	                         │  cell 1  │   │  cell 2  │   │  cell 5  │
//	                         │ descr.   │   │ descr.   │   │ descr.   │
//	                         └──────────┘   └──────────┘   └──────────┘
//
// Every cell then notices the new descriptor on its own, the next time it
// is asked a topology question. There is no push to readers.
//
// # Communication Protocol
//
// All requests are JSON over HTTP with a 5 second client timeout. Any
// non-2xx response is reported as a *StatusError carrying the first bytes
// of the response body. Nothing here retries; retry and backoff belong to
// the membership layer.
//
// Store config (POST /store-config):
//   - Carries the caller tag, the proposing cellid, the new major version
//     and the full server-side descriptor
//   - Returns the committed major/minor version
//
// Cell listing (GET /cells on celld):
//   - Returns CellInfo for every configured cell
package cluster
