// Package harness runs bank scenarios end to end against a real store.
//
// A scenario seeds genesis accounts through the sync reset path, submits
// each step's transaction through the orchestrator, resolves it with the
// step's verdict, and then checks assertions against the final store,
// ledger and receipt log.
//
// # Scenario Format
//
//	name: transfer_then_fail
//	description: "A committed transfer followed by a rejected vote"
//	hash: sha256
//	genesis:
//	  - account: alice
//	    balance: "100"
//	faults:
//	  failReceipt: [false, true]
//	steps:
//	  - tx: { txnType: transfer, srcAct: alice, tgtAct: bob, txnAmt: "30" }
//	    verdict: pass
//	    expect: committed
//	assertions:
//	  - type: balance
//	    account: alice
//	    expect: "70"
//	  - type: ledger_count
//	    account: bob
//	    count: 1
//	  - type: chain_intact
//	  - type: receipts
//	    verdict: pass
//	    count: 1
//
// Steps without txnTimestamp are stamped from a deterministic clock, so
// the same scenario always produces the same transaction ids and the same
// trace. Traces carry no hashes and are compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/transfer.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
