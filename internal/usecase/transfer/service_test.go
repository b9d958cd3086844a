package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/account"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	"github.com/kailas-cloud/transferguard/internal/repository/ledger"
	"github.com/kailas-cloud/transferguard/internal/usecase/compliance"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- Mocks ---

type mockCompliance struct {
	perTxFn     func(ctx context.Context) (rule.LimitPayload, bool, error)
	dailyFn     func(ctx context.Context) (rule.LimitPayload, bool, error)
	sanctionsFn func(ctx context.Context, country, name string) (compliance.SanctionResult, error)

	mu    sync.Mutex
	calls []string
}

func (m *mockCompliance) note(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockCompliance) PerTransactionLimit(ctx context.Context) (rule.LimitPayload, bool, error) {
	m.note("per_transaction")
	if m.perTxFn != nil {
		return m.perTxFn(ctx)
	}
	return rule.LimitPayload{}, false, nil
}

func (m *mockCompliance) DailyLimit(ctx context.Context) (rule.LimitPayload, bool, error) {
	m.note("daily")
	if m.dailyFn != nil {
		return m.dailyFn(ctx)
	}
	return rule.LimitPayload{}, false, nil
}

func (m *mockCompliance) CheckSanctions(ctx context.Context, country, name string) (compliance.SanctionResult, error) {
	m.note("sanctions")
	if m.sanctionsFn != nil {
		return m.sanctionsFn(ctx, country, name)
	}
	return compliance.SanctionResult{Source: compliance.SourceNone}, nil
}

func limitRule(amount string) func(context.Context) (rule.LimitPayload, bool, error) {
	return func(context.Context) (rule.LimitPayload, bool, error) {
		return rule.LimitPayload{Amount: d(amount), Currency: "BHD"}, true, nil
	}
}

// --- Fixture ---

type fixture struct {
	ledger *ledger.Store
	comp   *mockCompliance
	clock  time.Time
	svc    *Service
}

// newFixture seeds:
//   - alice: balance 5000, daily 1000, no per-transaction override
//   - carol: balance 1000, daily 5000, per-transaction override 2000
//   - bob:   balance 50, internal receiver
//
// Beneficiaries: b-ext (alice -> Acme Trading, Country X), b-bob (alice -> bob),
// b-carol (carol -> Globex, Bahrain), b-inactive (alice, deactivated).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	override := d("2000")
	alice, _ := account.New("alice", "Alice", d("5000"), d("1000"), nil, "BHD")
	carol, _ := account.New("carol", "Carol", d("1000"), d("5000"), &override, "BHD")
	bob, _ := account.New("bob", "Bob", d("50"), d("1000"), nil, "BHD")
	for _, a := range []account.Account{alice, carol, bob} {
		if err := st.CreateAccount(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	ext, _ := account.NewBeneficiary("b-ext", "alice", "Acme Trading", "Country X", "Bank", "IBAN1", "")
	internal, _ := account.NewBeneficiary("b-bob", "alice", "Bob", "Bahrain", "Bank", "IBAN2", "bob")
	carolExt, _ := account.NewBeneficiary("b-carol", "carol", "Globex", "Bahrain", "Bank", "IBAN3", "")
	inactive := account.ReconstructBeneficiary("b-inactive", "alice", "Old", "Bahrain", "Bank", "IBAN4", "", false)
	for _, b := range []account.Beneficiary{ext, internal, carolExt, inactive} {
		if err := st.CreateBeneficiary(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	f := &fixture{
		ledger: st,
		comp:   &mockCompliance{},
		clock:  time.Date(2026, 10, 18, 12, 0, 0, 0, time.Local),
	}
	f.svc = New(st, f.comp, Config{}, nil, WithClock(func() time.Time { return f.clock }))
	return f
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := f.ledger.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return a.Balance()
}

func outcome(t *testing.T, err error) *OutcomeError {
	t.Helper()
	var oe *OutcomeError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OutcomeError, got %v", err)
	}
	return oe
}

// --- Approved ---

func TestValidateAndExecute_Approved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.svc.ValidateAndExecute(ctx, "alice", "b-bob", d("200"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Status() != transaction.StatusCompleted || txn.Stage() != transaction.StageApproved {
		t.Errorf("unexpected outcome: %s %s", txn.Status(), txn.Stage())
	}
	if !f.balance(t, "alice").Equal(d("4800")) || !f.balance(t, "bob").Equal(d("250")) {
		t.Errorf("balances: alice=%s bob=%s", f.balance(t, "alice"), f.balance(t, "bob"))
	}

	stored, err := f.ledger.GetTransaction(ctx, txn.ID())
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status() != transaction.StatusCompleted || stored.ReceiverAccountID() != "bob" {
		t.Errorf("stored: %s receiver=%q", stored.Status(), stored.ReceiverAccountID())
	}
	want := []string{"per_transaction", "daily", "sanctions"}
	if len(f.comp.calls) != len(want) {
		t.Fatalf("compliance calls = %v", f.comp.calls)
	}
	for i := range want {
		if f.comp.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, f.comp.calls[i], want[i])
		}
	}
}

// --- Caller errors: nothing recorded ---

func TestValidateAndExecute_InvalidAmount(t *testing.T) {
	f := newFixture(t)
	for _, amt := range []string{"0", "-5"} {
		_, err := f.svc.ValidateAndExecute(context.Background(), "alice", "b-ext", d(amt))
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("%s: expected ErrInvalidAmount, got %v", amt, err)
		}
	}
	list, _ := f.ledger.ListTransactions(context.Background(), "alice", 10)
	if len(list) != 0 {
		t.Errorf("expected no records, got %d", len(list))
	}
}

func TestValidateAndExecute_BeneficiaryNotUsable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name, sender, beneficiary string
		want                      error
	}{
		{"other owner", "alice", "b-carol", domain.ErrBeneficiaryNotFound},
		{"inactive", "alice", "b-inactive", domain.ErrBeneficiaryNotFound},
		{"missing", "alice", "nope", domain.ErrBeneficiaryNotFound},
		{"unknown sender", "mallory", "b-ext", domain.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ValidateAndExecute(ctx, tt.sender, tt.beneficiary, d("10"))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	list, _ := f.ledger.ListTransactions(ctx, "alice", 10)
	if len(list) != 0 {
		t.Errorf("expected no records, got %d", len(list))
	}
}

// --- Blocked ---

func TestValidateAndExecute_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ValidateAndExecute(ctx, "carol", "b-carol", d("1500"))
	oe := outcome(t, err)
	if oe.Status != transaction.StatusBlocked || oe.Reason != transaction.ReasonInsufficientBalance {
		t.Errorf("unexpected outcome: %s %s", oe.Status, oe.Reason)
	}
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Error("outcome must unwrap to ErrInsufficientBalance")
	}
	if IsRetryable(err) {
		t.Error("BLOCKED must not be retryable")
	}
	if oe.Transaction.Stage() != transaction.StageReceived {
		t.Errorf("stage = %s", oe.Transaction.Stage())
	}
	if !f.balance(t, "carol").Equal(d("1000")) {
		t.Error("balance must be untouched")
	}
	stored, _ := f.ledger.GetTransaction(ctx, oe.Transaction.ID())
	if stored.Status() != transaction.StatusBlocked || stored.Reason() != transaction.ReasonInsufficientBalance {
		t.Errorf("stored: %s %s", stored.Status(), stored.Reason())
	}
}

func TestValidateAndExecute_PerTransactionLimit(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		ben     string
		amount  string
		rule    func(context.Context) (rule.LimitPayload, bool, error)
		blocked bool
	}{
		{"default limit passes", "alice", "b-ext", "500", nil, false},
		{"default limit blocks", "alice", "b-ext", "500.001", nil, true},
		{"rule lowers limit", "alice", "b-ext", "300", limitRule("250"), true},
		{"rule raises limit", "alice", "b-ext", "700", limitRule("800"), false},
		{"override beats rule", "carol", "b-carol", "900", limitRule("100"), false},
		{"foreign currency rule ignored", "alice", "b-ext", "400", func(context.Context) (rule.LimitPayload, bool, error) {
			return rule.LimitPayload{Amount: d("100"), Currency: "USD"}, true, nil
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.comp.perTxFn = tt.rule
			f.comp.dailyFn = limitRule("100000")

			_, err := f.svc.ValidateAndExecute(context.Background(), tt.sender, tt.ben, d(tt.amount))
			if !tt.blocked {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			oe := outcome(t, err)
			if oe.Reason != transaction.ReasonPerTransactionLimitExceeded {
				t.Errorf("reason = %s", oe.Reason)
			}
			if oe.Transaction.Stage() != transaction.StageBalanceChecked {
				t.Errorf("stage = %s", oe.Transaction.Stage())
			}
		})
	}
}

func TestValidateAndExecute_DailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// yesterday does not count
	f.clock = time.Date(2026, 10, 17, 23, 0, 0, 0, time.Local)
	if _, err := f.svc.ValidateAndExecute(ctx, "alice", "b-ext", d("500")); err != nil {
		t.Fatal(err)
	}

	f.clock = time.Date(2026, 10, 18, 9, 0, 0, 0, time.Local)
	for range 2 {
		if _, err := f.svc.ValidateAndExecute(ctx, "alice", "b-ext", d("450")); err != nil {
			t.Fatalf("within daily limit: %v", err)
		}
	}

	_, err := f.svc.ValidateAndExecute(ctx, "alice", "b-ext", d("100.01"))
	oe := outcome(t, err)
	if oe.Reason != transaction.ReasonDailyLimitExceeded || oe.Transaction.Stage() != transaction.StageLimitChecked {
		t.Errorf("unexpected outcome: %s at %s", oe.Reason, oe.Transaction.Stage())
	}

	if _, err := f.svc.ValidateAndExecute(ctx, "alice", "b-ext", d("100")); err != nil {
		t.Errorf("exactly reaching the limit must pass: %v", err)
	}
}

func TestValidateAndExecute_DailyRuleCapsAccountLimit(t *testing.T) {
	f := newFixture(t)
	f.comp.dailyFn = limitRule("300")

	_, err := f.svc.ValidateAndExecute(context.Background(), "alice", "b-ext", d("400"))
	if oe := outcome(t, err); oe.Reason != transaction.ReasonDailyLimitExceeded {
		t.Errorf("reason = %s", oe.Reason)
	}

	f.comp.dailyFn = limitRule("100000")
	if _, err := f.svc.ValidateAndExecute(context.Background(), "alice", "b-ext", d("400")); err != nil {
		t.Errorf("rule above the account limit must not raise it: %v", err)
	}
}

func TestValidateAndExecute_Sanctions(t *testing.T) {
	f := newFixture(t)
	f.comp.sanctionsFn = func(_ context.Context, country, _ string) (compliance.SanctionResult, error) {
		if country == "Country X" {
			return compliance.SanctionResult{
				Matched: true, Source: compliance.SourceRetrieval,
				EntityType: rule.EntityCountry, Value: "country x",
			}, nil
		}
		return compliance.SanctionResult{Source: compliance.SourceNone}, nil
	}

	_, err := f.svc.ValidateAndExecute(context.Background(), "alice", "b-ext", d("100"))
	oe := outcome(t, err)
	if oe.Reason != transaction.ReasonSanctionsMatch || oe.Transaction.Stage() != transaction.StageDailyChecked {
		t.Errorf("unexpected outcome: %s at %s", oe.Reason, oe.Transaction.Stage())
	}
	if !f.balance(t, "alice").Equal(d("5000")) {
		t.Error("balance must be untouched")
	}

	if _, err := f.svc.ValidateAndExecute(context.Background(), "alice", "b-bob", d("100")); err != nil {
		t.Errorf("other country must pass: %v", err)
	}
}

func TestValidateAndExecute_FirstFailingCheckWins(t *testing.T) {
	f := newFixture(t)
	f.comp.sanctionsFn = func(context.Context, string, string) (compliance.SanctionResult, error) {
		return compliance.SanctionResult{Matched: true}, nil
	}

	_, err := f.svc.ValidateAndExecute(context.Background(), "carol", "b-carol", d("1500"))
	if oe := outcome(t, err); oe.Reason != transaction.ReasonInsufficientBalance {
		t.Errorf("reason = %s", oe.Reason)
	}
	if len(f.comp.calls) != 0 {
		t.Errorf("later checks must not run: %v", f.comp.calls)
	}
}

// --- Failed ---

func TestValidateAndExecute_FaultIsFailed(t *testing.T) {
	f := newFixture(t)
	f.comp.sanctionsFn = func(context.Context, string, string) (compliance.SanctionResult, error) {
		return compliance.SanctionResult{}, domain.ErrIndexUnavailable
	}

	_, err := f.svc.ValidateAndExecute(context.Background(), "alice", "b-ext", d("100"))
	oe := outcome(t, err)
	if oe.Status != transaction.StatusFailed || oe.Reason != transaction.ReasonInternalError {
		t.Errorf("unexpected outcome: %s %s", oe.Status, oe.Reason)
	}
	if !IsRetryable(err) || !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Error("fault must be retryable and unwrap to its cause")
	}
	stored, _ := f.ledger.GetTransaction(context.Background(), oe.Transaction.ID())
	if stored.Status() != transaction.StatusFailed {
		t.Errorf("stored status = %s", stored.Status())
	}
}

func TestValidateAndExecute_CancelledBeforeDebit(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.comp.dailyFn = func(context.Context) (rule.LimitPayload, bool, error) {
		cancel()
		return rule.LimitPayload{}, false, nil
	}

	_, err := f.svc.ValidateAndExecute(ctx, "alice", "b-ext", d("100"))
	oe := outcome(t, err)
	if oe.Status != transaction.StatusFailed || oe.Reason != transaction.ReasonCancelled {
		t.Errorf("unexpected outcome: %s %s", oe.Status, oe.Reason)
	}
	stored, _ := f.ledger.GetTransaction(context.Background(), oe.Transaction.ID())
	if stored.Status() != transaction.StatusFailed || stored.Reason() != transaction.ReasonCancelled {
		t.Errorf("stored: %s %s", stored.Status(), stored.Reason())
	}
	if !f.balance(t, "alice").Equal(d("5000")) {
		t.Error("no debit after cancellation")
	}
}

// --- Concurrency ---

func TestValidateAndExecute_ConcurrentSameAccount(t *testing.T) {
	f := newFixture(t)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
		blocked  int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ValidateAndExecute(context.Background(), "carol", "b-carol", d("600"))
			mu.Lock()
			defer mu.Unlock()
			var oe *OutcomeError
			switch {
			case err == nil:
				approved++
			case errors.As(err, &oe) && oe.Reason == transaction.ReasonInsufficientBalance:
				blocked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if approved != 1 || blocked != 1 {
		t.Errorf("approved=%d blocked=%d, want 1 and 1", approved, blocked)
	}
	if !f.balance(t, "carol").Equal(d("400")) {
		t.Errorf("balance = %s", f.balance(t, "carol"))
	}
	if n := f.svc.locks.size(); n != 0 {
		t.Errorf("lock entries leaked: %d", n)
	}
}

// Each transfer fits the daily limit on its own and the balance covers both, so
// only the serialized daily sum can reject the second one.
func TestValidateAndExecute_ConcurrentSameAccountDailyLimit(t *testing.T) {
	f := newFixture(t)
	f.comp.dailyFn = limitRule("800")
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []transaction.Status
		reasons  []transaction.Reason
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := f.svc.ValidateAndExecute(context.Background(), "alice", "b-ext", d("450"))
			mu.Lock()
			defer mu.Unlock()
			var oe *OutcomeError
			switch {
			case err == nil:
				statuses = append(statuses, txn.Status())
			case errors.As(err, &oe):
				statuses = append(statuses, oe.Status)
				reasons = append(reasons, oe.Reason)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	var completed, blocked int
	for _, st := range statuses {
		switch st {
		case transaction.StatusCompleted:
			completed++
		case transaction.StatusBlocked:
			blocked++
		}
	}
	if completed != 1 || blocked != 1 {
		t.Fatalf("statuses = %v, want one completed and one blocked", statuses)
	}
	if len(reasons) != 1 || reasons[0] != transaction.ReasonDailyLimitExceeded {
		t.Errorf("reasons = %v, want daily_limit_exceeded", reasons)
	}
	if !f.balance(t, "alice").Equal(d("4550")) {
		t.Errorf("balance = %s", f.balance(t, "alice"))
	}
}

func TestAccountLocks_Independent(t *testing.T) {
	l := newAccountLocks()
	unlockA := l.lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := l.lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
	unlockA()
	if l.size() != 0 {
		t.Errorf("size = %d", l.size())
	}
}
