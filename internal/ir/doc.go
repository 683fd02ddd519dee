// Package ir provides the shared representation types for reentry.
//
// This package contains value and declaration types only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Script values are scalars (empty, string, int, bool); no floats
//   - Routine declarations are immutable once compiled
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
package ir
