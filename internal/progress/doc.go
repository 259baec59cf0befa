// Package progress tracks where each participant is in their page sequence
// and pushes stuck participants forward.
//
// A participant's position is the IndexInPages pointer into the route table
// built at session creation. Page handlers move it; this package only reads
// it, records first visits, and forces submissions for whoever is in last
// place. Every state change happens under the participant's lock.
package progress
