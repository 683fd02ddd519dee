// Package routine holds the routine table consumed by the dispatcher.
//
// A Routine owns one set of variable Slots. The dispatcher never creates or
// destroys routines; it only reads descriptors and moves the active-instance
// count up and down around each call. Isolation between nested instances of
// the same routine is the backup store's job, not this package's.
package routine
