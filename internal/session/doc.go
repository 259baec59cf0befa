// Package session creates experiment sessions.
//
// CreateSession resolves a session config, checks that the participant count
// divides into every app's groups, then builds the whole session in one
// store transaction:
//
//	session shell -> participants -> per app: subsessions, players,
//	group formation + initialization per subsession -> page routes -> room
//
// Nothing is visible to other readers until the transaction commits, and a
// failure at any step rolls back every row written so far.
package session
