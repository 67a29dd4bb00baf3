// Package placement implements deterministic object placement for a
// multi-cell cluster.
//
// # Overview
//
// Every object identifier is hashed onto a silo location in the fixed space
// [0, 32767]. A cell's Interval is split into 100 buckets; the identifier
// hash picks the bucket and the bucket boundary is the silo location:
//
//	id ──Hash──▶ h ──h % 100──▶ index ──End - index*Distance──▶ silo
//
// Rules then route a (rule number, silo location) pair to the origin cell
// that is authoritative for the object:
//
//	┌──────────────────────────────────────────┐
//	│ Rule 1: origin=1  (0, 16383]             │
//	│ Rule 1: origin=2  (16383, 32767]         │
//	│ Rule 2: origin=3  (0, 32767]             │
//	└──────────────────────────────────────────┘
//
// # Compatibility
//
// Hash and NextSiloLocation are part of the on-disk contract. Objects that
// are already stored are looked up at the locations these functions
// produce, so neither may change without a data migration. The same holds
// for the matching convention: a rule covers (Start, End], low bound
// exclusive and high bound inclusive.
//
// # Thread Safety
//
// Interval and Rule are immutable values and safe to share.
package placement
