// Package accountsync is the bulk import and export surface used when a
// node joins or repairs: paged reads of accounts and ledger entries, and
// atomic set, reset and delete of account batches.
//
// Every mutation runs inside the lease manager's exclusive section, so no
// transaction is between fetch and commit while a batch is written.
package accountsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/shardstate/internal/app"
	"github.com/roach88/shardstate/internal/config"
	"github.com/roach88/shardstate/internal/ir"
	"github.com/roach88/shardstate/internal/lease"
	"github.com/roach88/shardstate/internal/ledger"
	"github.com/roach88/shardstate/internal/snapshot"
	"github.com/roach88/shardstate/internal/store"
	"github.com/roach88/shardstate/internal/summary"
)

// ErrNoArchive is returned by Export and Restore when no archive is configured.
var ErrNoArchive = errors.New("no snapshot archive configured")

var _syncMtc = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shardstate_sync_records_total",
		Help: "Account records processed by sync operations.",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(_syncMtc)
}

// SyncBatchError reports a batch that was rejected as a whole. Nothing in
// the batch was written.
type SyncBatchError struct {
	Op        string
	AccountID string
	Reason    string
	Err       error
}

func (e *SyncBatchError) Error() string {
	msg := "sync batch " + e.Op
	if e.AccountID != "" {
		msg += " [" + e.AccountID + "]"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncBatchError) Unwrap() error { return e.Err }

// IsSyncBatchError checks if err is or wraps a SyncBatchError.
func IsSyncBatchError(err error) bool {
	var serr *SyncBatchError
	return errors.As(err, &serr)
}

// MaxAccountID sorts after every valid account id.
const MaxAccountID = "\U0010FFFF"

// Page is one bounded slice of an account range. When More is set, the next
// id-ordered page starts at Next. Timestamp-ordered pages resume from
// NextTimestamp instead and may repeat accounts sharing that timestamp.
type Page struct {
	Accounts      []ir.WrappedData `json:"accounts"`
	More          bool             `json:"more"`
	Next          string           `json:"next,omitempty"`
	NextTimestamp int64            `json:"next_timestamp,omitempty"`
}

// Source is a peer that serves account pages.
type Source interface {
	GetAccountData(ctx context.Context, start, end string, maxRecords int) (Page, error)
}

// Service implements the sync surface over one store.
type Service struct {
	app     app.App
	store   *store.Store
	ledger  *ledger.Ledger
	leases  *lease.Manager
	archive *snapshot.Archive
	buckets config.StateManager
	retry   config.Sync
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithConfig applies bucket sizes and pull retry settings.
func WithConfig(cfg config.Config) Option {
	return func(s *Service) {
		s.buckets = cfg.StateManager
		s.retry = cfg.Sync
	}
}

// WithArchive enables Export and Restore.
func WithArchive(a *snapshot.Archive) Option {
	return func(s *Service) {
		s.archive = a
	}
}

// New creates a sync service.
func New(a app.App, st *store.Store, l *ledger.Ledger, leases *lease.Manager, opts ...Option) *Service {
	s := &Service{
		app:     a,
		store:   st,
		ledger:  l,
		leases:  leases,
		buckets: config.Default.StateManager,
		retry:   config.Default.Sync,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bound(maxRecords, bucket int) int {
	if maxRecords <= 0 || (bucket > 0 && maxRecords > bucket) {
		return bucket
	}
	return maxRecords
}

func pageOf(data []ir.WrappedData, limit int) Page {
	if limit > 0 && len(data) > limit {
		data = data[:limit]
		return Page{Accounts: data, More: true, Next: data[len(data)-1].AccountID + "\x00"}
	}
	return Page{Accounts: data}
}

// GetAccountData returns accounts with start <= id <= end, at most
// min(maxRecords, accountBucketSize) of them.
func (s *Service) GetAccountData(ctx context.Context, start, end string, maxRecords int) (Page, error) {
	limit := bound(maxRecords, s.buckets.AccountBucketSize)
	data, err := s.store.GetAccountData(ctx, start, end, limit+1)
	if err != nil {
		return Page{}, err
	}
	return pageOf(data, limit), nil
}

// GetAccountDataByRange is GetAccountData restricted to tsStart <= timestamp
// <= tsEnd, ordered by timestamp.
func (s *Service) GetAccountDataByRange(ctx context.Context, start, end string, tsStart, tsEnd int64, maxRecords int) (Page, error) {
	limit := bound(maxRecords, s.buckets.AccountBucketSize)
	data, err := s.store.GetAccountDataByRange(ctx, start, end, tsStart, tsEnd, limit+1)
	if err != nil {
		return Page{}, err
	}
	page := pageOf(data, limit)
	if page.More {
		page.Next = ""
		page.NextTimestamp = page.Accounts[len(page.Accounts)-1].Timestamp
	}
	return page, nil
}

// GetAccountDataByList returns the listed accounts that exist.
func (s *Service) GetAccountDataByList(ctx context.Context, ids []string) ([]ir.WrappedData, error) {
	if n := s.buckets.AccountBucketSize; n > 0 && len(ids) > n {
		return nil, fmt.Errorf("get account data by list: %d ids exceeds bucket size %d", len(ids), n)
	}
	return s.store.GetAccountDataByList(ctx, ids)
}

// StateTable returns committed ledger entries in [tsStart, tsEnd], at most
// min(maxRecords, stateTableBucketSize), and whether more may exist.
func (s *Service) StateTable(ctx context.Context, tsStart, tsEnd int64, maxRecords int) ([]ir.StateTableObject, bool, error) {
	limit := bound(maxRecords, s.buckets.StateTableBucketSize)
	entries, err := s.ledger.ByTimestampRange(ctx, tsStart, tsEnd, limit+1)
	if err != nil {
		return nil, false, err
	}
	if limit > 0 && len(entries) > limit {
		return entries[:limit], true, nil
	}
	return entries, false, nil
}

// check verifies a batch before anything is written.
func (s *Service) check(op string, records []ir.AccountsCopy) ([]ir.Account, []string, error) {
	accounts := make([]ir.Account, 0, len(records))
	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	reader, _ := s.app.(app.TimestampHasher)

	for _, rec := range records {
		if rec.AccountID == "" {
			return nil, nil, &SyncBatchError{Op: op, Reason: "empty account id"}
		}
		if seen[rec.AccountID] {
			return nil, nil, &SyncBatchError{Op: op, AccountID: rec.AccountID, Reason: "duplicate account"}
		}
		seen[rec.AccountID] = true

		var ts int64
		var hash string
		var err error
		if reader != nil {
			ts, hash, err = reader.GetTimestampAndHashFromAccount(rec.Data)
		} else {
			hash, err = s.app.CalculateAccountHash(rec.Data)
		}
		if err != nil {
			return nil, nil, &SyncBatchError{Op: op, AccountID: rec.AccountID, Reason: "hash", Err: err}
		}
		if hash != rec.Hash {
			return nil, nil, &SyncBatchError{Op: op, AccountID: rec.AccountID,
				Reason: fmt.Sprintf("hash mismatch: record says %s, data hashes to %s", rec.Hash, hash)}
		}
		if ts != 0 && ts != rec.Timestamp {
			return nil, nil, &SyncBatchError{Op: op, AccountID: rec.AccountID,
				Reason: fmt.Sprintf("timestamp mismatch: record says %d, data says %d", rec.Timestamp, ts)}
		}
		accounts = append(accounts, rec.Account())
		ids = append(ids, rec.AccountID)
	}
	return accounts, ids, nil
}

func (s *Service) exclusive(ctx context.Context, op string, n int, fn func() error) error {
	l, err := s.leases.AcquireExclusive(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer l.Release()

	if err := fn(); err != nil {
		_syncMtc.WithLabelValues(op, "rejected").Add(float64(n))
		s.logger.Warn("sync batch rejected", zap.String("op", op), zap.Int("records", n), zap.Error(err))
		return err
	}
	_syncMtc.WithLabelValues(op, "applied").Add(float64(n))
	s.logger.Info("sync batch applied", zap.String("op", op), zap.Int("records", n))
	return nil
}

// SetAccountData imports records that the store does not already hold. A
// record conflicting with a stored one of a different hash rejects the batch.
func (s *Service) SetAccountData(ctx context.Context, records []ir.AccountsCopy) error {
	const op = "set"
	accounts, ids, err := s.check(op, records)
	if err != nil {
		_syncMtc.WithLabelValues(op, "rejected").Add(float64(len(records)))
		return err
	}
	return s.exclusive(ctx, op, len(records), func() error {
		if err := s.store.SetAccounts(ctx, accounts); err != nil {
			var conflict *store.ConflictError
			if errors.As(err, &conflict) {
				return &SyncBatchError{Op: op, AccountID: conflict.AccountID, Reason: "conflicts with stored record", Err: err}
			}
			return &SyncBatchError{Op: op, Reason: "store write failed", Err: err}
		}
		s.ledger.Repair(ids...)
		return nil
	})
}

// ResetAccountData overwrites the listed accounts, re-anchoring their chains
// and lifting any ledger block on them.
func (s *Service) ResetAccountData(ctx context.Context, records []ir.AccountsCopy) error {
	const op = "reset"
	accounts, ids, err := s.check(op, records)
	if err != nil {
		_syncMtc.WithLabelValues(op, "rejected").Add(float64(len(records)))
		return err
	}
	return s.exclusive(ctx, op, len(records), func() error {
		if err := s.store.ResetAccounts(ctx, accounts); err != nil {
			return &SyncBatchError{Op: op, Reason: "store write failed", Err: err}
		}
		s.ledger.Repair(ids...)
		return nil
	})
}

// DeleteAccountData removes the listed accounts.
func (s *Service) DeleteAccountData(ctx context.Context, ids []string, ts int64) error {
	const op = "delete"
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return &SyncBatchError{Op: op, Reason: "empty account id"}
		}
		if seen[id] {
			return &SyncBatchError{Op: op, AccountID: id, Reason: "duplicate account"}
		}
		seen[id] = true
	}
	return s.exclusive(ctx, op, len(ids), func() error {
		if err := s.store.DeleteAccounts(ctx, ids, ts); err != nil {
			return &SyncBatchError{Op: op, Reason: "store write failed", Err: err}
		}
		s.ledger.Repair(ids...)
		return nil
	})
}

// DeleteLocalAccountData removes every account and returns how many there were.
func (s *Service) DeleteLocalAccountData(ctx context.Context, ts int64) (int, error) {
	var n int
	err := s.exclusive(ctx, "delete_local", 0, func() error {
		var err error
		n, err = s.store.DeleteAllAccounts(ctx, ts)
		if err != nil {
			return &SyncBatchError{Op: "delete_local", Reason: "store write failed", Err: err}
		}
		s.ledger.RepairAll()
		return nil
	})
	return n, err
}

// Export archives every stored account under cycle.
func (s *Service) Export(ctx context.Context, cycle uint64) (int, error) {
	if s.archive == nil {
		return 0, ErrNoArchive
	}
	copies := make([]ir.AccountsCopy, 0)
	cursor := ""
	for {
		limit := bound(0, s.buckets.AccountBucketSize)
		accounts, err := s.store.GetAccounts(ctx, cursor, MaxAccountID, limit+1)
		if err != nil {
			return 0, fmt.Errorf("export cycle %d: %w", cycle, err)
		}
		more := limit > 0 && len(accounts) > limit
		if more {
			accounts = accounts[:limit]
		}
		for _, a := range accounts {
			copies = append(copies, ir.AccountsCopy{
				AccountID:   a.AccountID,
				CycleNumber: cycle,
				Data:        a.Data,
				Timestamp:   a.Timestamp,
				Hash:        a.Hash,
				IsGlobal:    a.IsGlobal,
			})
		}
		if !more {
			break
		}
		cursor = accounts[len(accounts)-1].AccountID + "\x00"
	}

	if err := s.archive.Put(cycle, copies); err != nil {
		return 0, err
	}
	s.logger.Info("accounts exported", zap.Uint64("cycle", cycle), zap.Int("accounts", len(copies)))
	return len(copies), nil
}

// Restore resets the store to the accounts archived under cycle. Accounts
// not in the archive are left alone.
func (s *Service) Restore(ctx context.Context, cycle uint64) (int, error) {
	if s.archive == nil {
		return 0, ErrNoArchive
	}
	copies, err := s.archive.Load(cycle)
	if err != nil {
		return 0, err
	}
	if err := s.ResetAccountData(ctx, copies); err != nil {
		return 0, err
	}
	return len(copies), nil
}

// Summarize rebuilds the data summary from every stored account. The
// returned Summary can seed an orchestrator's running summary.
func (s *Service) Summarize(ctx context.Context) (*summary.Summary, error) {
	sum := summary.New(s.app)
	if !sum.Enabled() {
		return sum, nil
	}
	cursor := ""
	for {
		limit := bound(0, s.buckets.AccountBucketSize)
		accounts, err := s.store.GetAccounts(ctx, cursor, MaxAccountID, limit+1)
		if err != nil {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		more := limit > 0 && len(accounts) > limit
		if more {
			accounts = accounts[:limit]
		}
		for _, a := range accounts {
			sum.InitAccount(a.Data)
		}
		if !more {
			return sum, nil
		}
		cursor = accounts[len(accounts)-1].AccountID + "\x00"
	}
}

// Close runs the application's shutdown hook, if it has one.
func (s *Service) Close() error {
	c, ok := s.app.(app.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}

func (s *Service) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.retry.InitialInterval > 0 {
		b.InitialInterval = s.retry.InitialInterval
	}
	if s.retry.MaxInterval > 0 {
		b.MaxInterval = s.retry.MaxInterval
	}
	b.MaxElapsedTime = time.Duration(0)
	return backoff.WithContext(backoff.WithMaxRetries(b, s.retry.MaxRetries), ctx)
}

// Pull copies accounts in [start, end] from src into the store page by
// page. Fetch errors are retried with exponential backoff; a rejected batch
// is not. Returns the number of records imported before any error.
func (s *Service) Pull(ctx context.Context, src Source, start, end string) (int, error) {
	total := 0
	cursor := start
	for {
		var page Page
		fetch := func() error {
			p, err := src.GetAccountData(ctx, cursor, end, s.buckets.AccountBucketSize)
			if err != nil {
				s.logger.Debug("sync page fetch failed", zap.String("cursor", cursor), zap.Error(err))
				return err
			}
			page = p
			return nil
		}
		if err := backoff.Retry(fetch, s.newBackOff(ctx)); err != nil {
			return total, fmt.Errorf("pull page at %q: %w", cursor, err)
		}

		copies := make([]ir.AccountsCopy, len(page.Accounts))
		for i, w := range page.Accounts {
			copies[i] = ir.AccountsCopy{
				AccountID: w.AccountID,
				Data:      w.Data,
				Timestamp: w.Timestamp,
				Hash:      w.StateID,
				IsGlobal:  w.IsGlobal,
			}
		}
		if err := s.SetAccountData(ctx, copies); err != nil {
			return total, err
		}
		total += len(copies)

		if !page.More {
			return total, nil
		}
		cursor = page.Next
	}
}
