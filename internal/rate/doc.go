// Package rate provides the in-process fixed-window counter every widget rate
// limit layer is built from.
//
// # Window semantics
//
// A [Counter] tracks one purpose (one layer) for many identifiers. The first
// check for an identifier opens a window of Config.Window; checks are admitted
// while count < Max and denied afterwards until the window has passed, at
// which point the entry is replaced, not incremented. Two full windows can be
// consumed back to back around a boundary; the burst layer compensates.
//
// # Memory bound
//
// A counter never tracks more than Config.MaxEntries identifiers. Inserting a
// new identifier at capacity first evicts the oldest quarter by first-seen
// time. Eviction only ever relaxes a limit.
//
// # What this package must NOT do
//
//   - Perform I/O. State is process-local and lost on restart.
//   - Know about layer names or policies (those live in internal/limiters).
package rate
