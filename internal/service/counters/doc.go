// Package counters maintains the derived engagement totals on campaigns and
// audience users.
//
// An increment happens exactly once per recipient per event type. The gate is
// a conditional "set if null" update whose affected-row count decides which
// concurrent writer wins; the increments run in the same transaction so the
// transition and its counters land together or not at all.
//
// Repository implementations live in repository/postgres/.
package counters
