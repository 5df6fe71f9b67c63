package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/shardstate/internal/ir"
)

// TraceSnapshot captures what a scenario run did, without hashes or ids.
// It serializes to canonical JSON so golden files compare byte for byte.
type TraceSnapshot struct {
	ScenarioName string            `json:"scenario_name"`
	Trace        []TraceEvent      `json:"trace"`
	Balances     map[string]string `json:"balances"`
	Receipts     map[string]int    `json:"receipts"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		eventMap := map[string]any{
			"step":     ev.Step,
			"txn_type": ev.TxnType,
			"status":   ev.Status,
		}
		if len(ev.Accounts) > 0 {
			accounts := make([]any, len(ev.Accounts))
			for j, a := range ev.Accounts {
				accounts[j] = a
			}
			eventMap["accounts"] = accounts
		}
		if ev.Verdict != "" {
			eventMap["verdict"] = ev.Verdict
		}
		if ev.Reason != "" {
			eventMap["reason"] = ev.Reason
		}
		traceList[i] = eventMap
	}

	balances := make(map[string]any, len(s.Balances))
	for k, v := range s.Balances {
		balances[k] = v
	}
	receipts := make(map[string]any, len(s.Receipts))
	for k, v := range s.Receipts {
		receipts[k] = v
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"balances":      balances,
		"receipts":      receipts,
	}
}

// Snapshot returns the canonical JSON trace of a result.
func Snapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Balances:     result.Balances,
		Receipts:     result.Receipts,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
