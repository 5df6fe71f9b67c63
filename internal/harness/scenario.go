package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shardstate/internal/apply"
	"github.com/roach88/shardstate/internal/fault"
	"github.com/roach88/shardstate/internal/ir"
)

// Scenario is one end-to-end run of the bank application.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Hash selects the account hash algorithm. Empty means sha256.
	Hash string `yaml:"hash,omitempty"`

	// Genesis accounts are imported before the first step.
	Genesis []GenesisAccount `yaml:"genesis,omitempty"`

	// Faults scripts fault-injection decisions per knob, consumed in order.
	// Once a knob's list is exhausted it never fires again.
	Faults map[string][]bool `yaml:"faults,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// GenesisAccount is an account present before the scenario starts.
type GenesisAccount struct {
	Account string `yaml:"account"`
	Balance string `yaml:"balance"`
}

// Step submits one transaction and resolves it.
type Step struct {
	// Tx is the transaction payload. A missing txnTimestamp is filled in
	// from the scenario clock.
	Tx map[string]interface{} `yaml:"tx"`

	// Verdict is pass (the default), fail, or none to leave the
	// transaction applied and unresolved.
	Verdict string `yaml:"verdict,omitempty"`

	// Expect is the status the step must end in. Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// Step verdicts.
const (
	VerdictPass = "pass"
	VerdictFail = "fail"
	VerdictNone = "none"
)

// Step statuses beyond the orchestrator's own.
const (
	StatusRejected = "rejected"
	StatusDropped  = "dropped"
	StatusBlocked  = "blocked"
)

var stepStatuses = map[string]bool{
	string(apply.StatusApplied):    true,
	string(apply.StatusCommitted):  true,
	string(apply.StatusRolledBack): true,
	StatusRejected:                 true,
	StatusDropped:                  true,
	StatusBlocked:                  true,
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of balance, ledger_count, chain_intact, receipts.
	Type string `yaml:"type"`

	// Account scopes balance, ledger_count and chain_intact. Empty means
	// every account for ledger_count and chain_intact.
	Account string `yaml:"account,omitempty"`

	// Expect is the expected balance (balance).
	Expect string `yaml:"expect,omitempty"`

	// Count is the expected number of ledger entries or receipts.
	Count int `yaml:"count,omitempty"`

	// Verdict filters receipts. Empty counts every receipt.
	Verdict string `yaml:"verdict,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance     = "balance"
	AssertLedgerCount = "ledger_count"
	AssertChainIntact = "chain_intact"
	AssertReceipts    = "receipts"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields: "assertion:" instead of "assertions:" must not pass silently
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Hash != "" {
		if _, err := ir.NewHasher(s.Hash); err != nil {
			return fmt.Errorf("hash: %w", err)
		}
	}

	seen := make(map[string]bool, len(s.Genesis))
	for i, g := range s.Genesis {
		if g.Account == "" {
			return fmt.Errorf("genesis[%d]: account is required", i)
		}
		if seen[g.Account] {
			return fmt.Errorf("genesis[%d]: duplicate account %q", i, g.Account)
		}
		seen[g.Account] = true
		if g.Balance == "" {
			return fmt.Errorf("genesis[%d]: balance is required", i)
		}
	}

	for knob := range s.Faults {
		switch fault.Knob(knob) {
		case fault.LoseTx, fault.FailNoRepairTx, fault.FailReceipt, fault.VoteFlip, fault.IgnoreVote:
		default:
			return fmt.Errorf("faults: unknown knob %q", knob)
		}
	}

	for i, step := range s.Steps {
		if len(step.Tx) == 0 {
			return fmt.Errorf("steps[%d]: tx is required", i)
		}
		switch step.Verdict {
		case "", VerdictPass, VerdictFail, VerdictNone:
		default:
			return fmt.Errorf("steps[%d]: unknown verdict %q", i, step.Verdict)
		}
		if step.Expect != "" && !stepStatuses[step.Expect] {
			return fmt.Errorf("steps[%d]: unknown expected status %q", i, step.Expect)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertBalance:
		if a.Account == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: account and expect are required for balance", index)
		}
	case AssertLedgerCount, AssertReceipts:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		if a.Type == AssertReceipts && a.Verdict != "" && a.Verdict != VerdictPass && a.Verdict != VerdictFail {
			return fmt.Errorf("assertions[%d]: unknown receipt verdict %q", index, a.Verdict)
		}
	case AssertChainIntact:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
