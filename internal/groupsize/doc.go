// Package groupsize resolves per-app players-per-group constraints into the
// participant-count divisor a session must satisfy.
//
// A constraint is one of:
//   - Unset: the app does not group players; any count works (multiple of 1)
//   - Fixed: groups of exactly k players
//   - Roles: groups built from named sub-roles, e.g. [2, 3] is two buyers and
//     three sellers, a group of 5
//
// A session's participant count must be a multiple of every app's minimum,
// so the session divisor is the least common multiple across its app
// sequence. Everything here is pure and deterministic.
package groupsize
