package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.AddStep(TraceEvent{Step: 1, TxnType: "create", Accounts: []string{"a"}, Verdict: "pass", Status: "committed"})
	result.Balances["a"] = "5"
	result.Receipts["pass"] = 1

	got, err := Snapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"balances":{"a":"5"},"receipts":{"pass":1},"scenario_name":"tiny","trace":[{"accounts":["a"],"status":"committed","step":1,"txn_type":"create","verdict":"pass"}]}`,
		string(got))
}

func TestSnapshot_OmitsEmptyFields(t *testing.T) {
	result := NewResult()
	result.AddStep(TraceEvent{Step: 2, TxnType: "transfer", Status: "rejected", Reason: "bad"})

	got, err := Snapshot("bare", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"balances":{},"receipts":{},"scenario_name":"bare","trace":[{"reason":"bad","status":"rejected","step":2,"txn_type":"transfer"}]}`,
		string(got))
}
