package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/shardstate/internal/ledger"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s", ev.Step, ev.TxnType, ev.Accounts, ev.Status)
			if ev.Reason != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Reason)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// AssertionContext provides the ledger for ledger_count and chain_intact.
type AssertionContext struct {
	Ctx    context.Context
	Ledger *ledger.Ledger
}

func assertBalance(result *Result, a Assertion) error {
	got, ok := result.Balances[a.Account]
	if !ok {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("account %s with balance %s", a.Account, a.Expect),
			Actual:   "account not found",
			Trace:    result.Trace,
		}
	}
	if got != a.Expect {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("balance of %s = %s", a.Account, a.Expect),
			Actual:   fmt.Sprintf("balance of %s = %s", a.Account, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertLedgerCount counts committed entries for one account, or all of them.
func assertLedgerCount(actx *AssertionContext, result *Result, a Assertion) error {
	var n int
	if a.Account != "" {
		entries, err := actx.Ledger.ByAccount(actx.Ctx, a.Account)
		if err != nil {
			return err
		}
		n = len(entries)
	} else {
		entries, err := actx.Ledger.ByTimestampRange(actx.Ctx, math.MinInt64, math.MaxInt64, 0)
		if err != nil {
			return err
		}
		n = len(entries)
	}

	if n != a.Count {
		scope := "all accounts"
		if a.Account != "" {
			scope = a.Account
		}
		return &AssertionError{
			Type:     AssertLedgerCount,
			Expected: fmt.Sprintf("%d ledger entries for %s", a.Count, scope),
			Actual:   fmt.Sprintf("%d entries", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertChainIntact(actx *AssertionContext, a Assertion) error {
	var gaps []ledger.Gap
	var err error
	if a.Account != "" {
		gaps, err = actx.Ledger.Verify(actx.Ctx, a.Account)
	} else {
		gaps, err = actx.Ledger.VerifyAll(actx.Ctx)
	}
	if err != nil {
		return err
	}
	if len(gaps) == 0 {
		return nil
	}

	desc := make([]string, len(gaps))
	for i, g := range gaps {
		desc[i] = fmt.Sprintf("%s %s gap at seq %d", g.AccountID, g.Kind, g.Seq)
	}
	return &AssertionError{
		Type:     AssertChainIntact,
		Expected: "no chain gaps",
		Actual:   strings.Join(desc, "; "),
	}
}

func assertReceipts(result *Result, a Assertion) error {
	n := 0
	for verdict, count := range result.Receipts {
		if a.Verdict == "" || a.Verdict == verdict {
			n += count
		}
	}
	if n != a.Count {
		what := "receipts"
		if a.Verdict != "" {
			what = a.Verdict + " receipts"
		}
		return &AssertionError{
			Type:     AssertReceipts,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// ledger_count and chain_intact need actx; without it they fail.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertBalance:
			err = assertBalance(result, a)
		case AssertReceipts:
			err = assertReceipts(result, a)
		case AssertLedgerCount, AssertChainIntact:
			if actx == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a ledger", i, a.Type)
			} else if a.Type == AssertLedgerCount {
				err = assertLedgerCount(actx, result, a)
			} else {
				err = assertChainIntact(actx, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
