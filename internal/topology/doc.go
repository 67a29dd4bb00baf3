// Package topology is the per-process view of the multi-cell cluster
// topology and the entry point for changing it.
//
// # Overview
//
// A Service answers questions about the cluster (which cells exist, which
// cell is master, where an object id is placed) from a cached snapshot of
// the descriptor file, and turns topology changes into new descriptor
// versions handed to a membership.Committer.
//
//	 accessor ──▶ refreshLocked ───▶ storage.Store.Stat
//	                   │ mtime changed
//	                   ▼
//	            descriptor.Codec.Parse ──▶ diff watched fields ──▶ queue
//	                                                               │
//	 mutation ──▶ Codec mutators ──▶ Stage ──▶ Committer           │
//	                                                               ▼
//	                                          listeners (lock released)
//
// # Implementations
//
// New selects the implementation once, at construction:
//
//   - MultiCell when a local cellid is configured. The descriptor is
//     parsed during construction; a malformed descriptor fails New.
//   - Inert when no local cellid is configured. Every accessor returns a
//     fixed default (cellid 0, empty endpoints, master and standalone) and
//     never touches the filesystem. Mutations return ErrNotMulticell.
//
// # Refresh
//
// There is no background refresh. Every accessor compares the descriptor's
// modification time with the one it last parsed and re-parses on a
// difference, so a change committed by another process becomes visible on
// the next call. A descriptor that fails to parse is logged and counted;
// the previous snapshot keeps being served and mutations fail until a
// valid descriptor is committed.
//
// # Notifications
//
// Changes to the local cell's adminVIP, dataVIP, spVIP, subnet and gateway
// are reported to PropertyListeners, as is any service-tag update of the
// local cell. Events are queued while the service lock is held and
// delivered after it is released, in the order they were produced, to the
// listeners registered at the time of the change, in registration order.
// A single goroutine delivers at a time; a listener may call back into the
// Service, and events it causes are delivered after the current one.
//
// The queue is bounded. When it is full the oldest undelivered event is
// dropped and counted.
//
// # Writes
//
// Mutations serialize with accessors on the same lock and do not return
// before the Committer does. The in-process view of the local cell is
// updated before the hand-off so that a caller reads its own write even
// when the commit is slow. Once the Committer accepts, the proposed
// topology is served until the descriptor is re-read, including a
// standalone setup that renames the local cell. A failed commit discards
// the staged file and restores the cached view. The committed descriptor
// is then re-read on the next call.
//
// # Thread Safety
//
// All Service methods are safe for concurrent use.
package topology
