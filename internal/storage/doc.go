// Package storage keeps the cluster descriptor file of a cell and the
// versions staged for commit next to it.
//
// # Overview
//
// Every cell holds its own copy of the descriptor. Readers never watch the
// file; they compare its modification time against the last one they parsed
// whenever they are asked a question, and re-parse on a difference. Writers
// never edit the active file in place:
//
//	┌──────────────┐  Stage   ┌─────────────────────────────┐
//	│ new document │ ───────▶ │ silo_info.xml.1718031234567 │
//	└──────────────┘          └──────────────┬──────────────┘
//	                                         │ Activate (rename)
//	                                         ▼
//	                          ┌─────────────────────────────┐
//	                          │ silo_info.xml    (polled)   │
//	                          └─────────────────────────────┘
//
// Activation is normally performed by the membership layer once a new
// version is committed cluster-wide; in single-host deployments the local
// committer activates directly.
//
// # Modification Time
//
// The modification time is only a change-detection token, not a clock.
// Activate guarantees it strictly increases so that a commit landing in the
// same filesystem timestamp tick as the previous one is still observed.
//
// # Backends
//
// FileStore works on any billy.Filesystem. NewDirStore binds it to an OS
// directory through osfs; tests may use memfs.
//
// # Thread Safety
//
// FileStore serializes Stage and Activate. Stat and Open may run
// concurrently with them; a reader either sees the old or the new file.
package storage
