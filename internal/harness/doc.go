// Package harness runs session scenarios against a real store and compares
// what happened with expectations and golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	manifest: manifest.yaml
//	steps:
//	  - create: { config: public_goods, participants: 6 }
//	    expect: { participants: 6 }
//	  - place: [1, 1, 3, 0, 2, 2]
//	  - advance: { fail: [2] }
//	    expect: { outcome: resubmitted_laggards, page_index: 1 }
//	assertions:
//	  - type: counts
//	    expect: { participants: 6, page_routes: 36 }
//	  - type: participant
//	    participant: 4
//	    expect: { index_in_pages: 1, status: "Playing" }
//
// Each step does exactly one of create, place or advance. place and advance
// act on the most recently created session. place lists page positions by
// id_in_session; 0 leaves a participant unvisited.
//
// # Assertion Types
//
//   - counts: entities owned by the session
//   - participant: fields of one participant, by id_in_session
//   - route: one entry of a participant's routing table
//   - groups: group membership of an app round, by id_in_session
//   - event_count: how many steps produced the given kind and outcome
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory database, sequential codes, a manual
// clock and an identity shuffle, so identical scenarios produce identical
// snapshots. Page submissions go to an in-process recorder, never the
// network.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/pilot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
