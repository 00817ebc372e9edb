// Package schedule turns a schedule description (once, daily, weekly on a set
// of days) plus a relative or absolute trigger into concrete timestamps.
//
// Everything here is pure computation: no I/O, no clocks. Callers pass "now".
package schedule
