package memory

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/wal"
)

type ledgerFactory func(t *testing.T, accounts map[int64]*domain.Account, w *wal.WAL) usecase.Ledger

func newMutex(t *testing.T, accounts map[int64]*domain.Account, w *wal.WAL) usecase.Ledger {
	t.Helper()
	l, err := NewMutexLedger(accounts, w)
	require.NoError(t, err)
	return l
}

func newLMAX(t *testing.T, accounts map[int64]*domain.Account, w *wal.WAL) usecase.Ledger {
	t.Helper()
	l, err := NewLMAXLedger(accounts, w, WithPartitions(4))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

var factories = map[string]ledgerFactory{
	"mutex": newMutex,
	"lmax":  newLMAX,
}

func seed() map[int64]*domain.Account {
	return map[int64]*domain.Account{
		1: domain.NewAccount(1, 1000, 0),
		2: domain.NewAccount(2, 0, 0),
	}
}

func mustTran(t *testing.T, customerID, amount int64, kind domain.TransactionKind, desc string) *domain.Transaction {
	t.Helper()
	tran, err := domain.NewTransaction(customerID, amount, kind, desc)
	require.NoError(t, err)
	return tran
}

func TestLedgerDebitToLimitThenCredit(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := factory(t, seed(), nil)

			res, err := l.ApplyTransaction(ctx, mustTran(t, 1, 1000, domain.TransactionKindDebit, "rent"))
			require.NoError(t, err)
			assert.Equal(t, domain.Balance{Limit: 1000, Balance: -1000}, res)

			_, err = l.ApplyTransaction(ctx, mustTran(t, 1, 1, domain.TransactionKindDebit, "coffee"))
			assert.ErrorIs(t, err, domain.ErrLimitExceeded)

			res, err = l.ApplyTransaction(ctx, mustTran(t, 1, 500, domain.TransactionKindCredit, "salary"))
			require.NoError(t, err)
			assert.Equal(t, int64(-500), res.Balance)

			stmt, err := l.GetStatement(ctx, 1, domain.DefaultStatementSize)
			require.NoError(t, err)
			assert.Equal(t, int64(-500), stmt.Balance)
			assert.Equal(t, int64(1000), stmt.Limit)
			require.Len(t, stmt.LastTransactions, 2)
			assert.Equal(t, "salary", stmt.LastTransactions[0].Description)
			assert.Equal(t, "rent", stmt.LastTransactions[1].Description)
			assert.Equal(t, uint64(2), stmt.LastTransactions[0].Sequence)
			assert.False(t, stmt.AsOf.IsZero())
		})
	}
}

func TestLedgerUnknownCustomer(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := factory(t, seed(), nil)

			_, err := l.ApplyTransaction(ctx, mustTran(t, 99, 1, domain.TransactionKindCredit, "x"))
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)

			_, err = l.GetStatement(ctx, 99, 10)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
		})
	}
}

func TestLedgerEmptyStatement(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			l := factory(t, seed(), nil)
			stmt, err := l.GetStatement(context.Background(), 2, 10)
			require.NoError(t, err)
			assert.NotNil(t, stmt.LastTransactions)
			assert.Empty(t, stmt.LastTransactions)
		})
	}
}

func TestLedgerStatementKeepsLastN(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := factory(t, seed(), nil)
			for i := 0; i < 15; i++ {
				_, err := l.ApplyTransaction(ctx, mustTran(t, 2, 1, domain.TransactionKindCredit, "c"))
				require.NoError(t, err)
			}
			stmt, err := l.GetStatement(ctx, 2, 10)
			require.NoError(t, err)
			require.Len(t, stmt.LastTransactions, 10)
			for i, tran := range stmt.LastTransactions {
				assert.Equal(t, uint64(15-i), tran.Sequence)
			}
		})
	}
}

// 同一帳戶併發扣款，只有不會超過額度的那一部分成功
func TestLedgerConcurrentDebitsRespectLimit(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := factory(t, seed(), nil)

			const workers = 100
			var ok, rejected atomic.Int64
			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					_, err := l.ApplyTransaction(ctx, mustTran(t, 1, 100, domain.TransactionKindDebit, "d"))
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, domain.ErrLimitExceeded):
						rejected.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(10), ok.Load())
			assert.Equal(t, int64(90), rejected.Load())

			stmt, err := l.GetStatement(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(-1000), stmt.Balance)
			assert.Len(t, stmt.LastTransactions, 10)
		})
	}
}

func TestLedgerConcurrentMixedKeepsInvariant(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := factory(t, seed(), nil)

			const workers = 200
			var sum atomic.Int64
			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				kind := domain.TransactionKindDebit
				if i%3 == 0 {
					kind = domain.TransactionKindCredit
				}
				amount := int64(37 + i%50)
				go func() {
					defer wg.Done()
					tran := mustTran(t, 1, amount, kind, "mix")
					if _, err := l.ApplyTransaction(ctx, tran); err == nil {
						sum.Add(tran.Delta())
					} else {
						assert.ErrorIs(t, err, domain.ErrLimitExceeded)
					}
				}()
			}
			wg.Wait()

			stmt, err := l.GetStatement(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, sum.Load(), stmt.Balance)
			assert.GreaterOrEqual(t, stmt.Balance, -stmt.Limit)
		})
	}
}

// 只有金額 1 的入帳時，餘額必定等於最新一筆的 Sequence
func TestLedgerStatementConsistentUnderWrites(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := factory(t, seed(), nil)

			stop := make(chan struct{})
			var writers sync.WaitGroup
			writers.Add(4)
			for i := 0; i < 4; i++ {
				go func() {
					defer writers.Done()
					for {
						select {
						case <-stop:
							return
						default:
						}
						_, err := l.ApplyTransaction(ctx, mustTran(t, 2, 1, domain.TransactionKindCredit, "tick"))
						assert.NoError(t, err)
					}
				}()
			}

			for i := 0; i < 200; i++ {
				stmt, err := l.GetStatement(ctx, 2, 10)
				require.NoError(t, err)
				if len(stmt.LastTransactions) == 0 {
					assert.Equal(t, int64(0), stmt.Balance)
					continue
				}
				assert.Equal(t, int64(stmt.LastTransactions[0].Sequence), stmt.Balance)
			}
			close(stop)
			writers.Wait()
		})
	}
}

func TestLedgerRecoversFromWAL(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "wal.log")

			w, err := wal.NewWAL(path)
			require.NoError(t, err)
			t.Cleanup(func() { _ = w.Close() })
			l := factory(t, seed(), w)
			_, err = l.ApplyTransaction(ctx, mustTran(t, 1, 300, domain.TransactionKindDebit, "a"))
			require.NoError(t, err)
			_, err = l.ApplyTransaction(ctx, mustTran(t, 1, 50, domain.TransactionKindCredit, "b"))
			require.NoError(t, err)
			_, err = l.ApplyTransaction(ctx, mustTran(t, 1, 5000, domain.TransactionKindDebit, "too much"))
			require.ErrorIs(t, err, domain.ErrLimitExceeded)

			w2, err := wal.NewWAL(path)
			require.NoError(t, err)
			defer w2.Close()
			recovered := factory(t, seed(), w2)

			stmt, err := recovered.GetStatement(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(-250), stmt.Balance)
			require.Len(t, stmt.LastTransactions, 2)
			assert.Equal(t, "b", stmt.LastTransactions[0].Description)

			// 恢復後 Sequence 接續
			tran := mustTran(t, 1, 1, domain.TransactionKindCredit, "c")
			_, err = recovered.ApplyTransaction(ctx, tran)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), tran.Sequence)
		})
	}
}

func TestLedgerWALFailureLeavesStateUntouched(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			w, err := wal.NewWAL(filepath.Join(t.TempDir(), "wal.log"))
			require.NoError(t, err)
			l := factory(t, seed(), w)
			require.NoError(t, w.Close())

			_, err = l.ApplyTransaction(ctx, mustTran(t, 1, 10, domain.TransactionKindCredit, "lost"))
			assert.ErrorIs(t, err, domain.ErrStorage)
			assert.ErrorIs(t, err, domain.ErrWALWriteFailed)

			stmt, err := l.GetStatement(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(0), stmt.Balance)
			assert.Empty(t, stmt.LastTransactions)
		})
	}
}

func TestLoadAllAccountsReturnsCopies(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := factory(t, seed(), nil)
			_, err := l.ApplyTransaction(ctx, mustTran(t, 1, 10, domain.TransactionKindCredit, "c"))
			require.NoError(t, err)

			accounts, err := l.LoadAllAccounts(ctx)
			require.NoError(t, err)
			require.Len(t, accounts, 2)
			assert.Equal(t, int64(10), accounts[1].Balance)

			accounts[1].Balance = 9999
			stmt, err := l.GetStatement(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(10), stmt.Balance)
		})
	}
}

// 帳戶 1 的鎖被佔住時，帳戶 2 的交易不受影響
func TestMutexLedgerAccountsDoNotBlockEachOther(t *testing.T) {
	l, err := NewMutexLedger(seed(), nil)
	require.NoError(t, err)

	l.accounts[1].mu.Lock()
	defer l.accounts[1].mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := l.ApplyTransaction(context.Background(), mustTran(t, 2, 5, domain.TransactionKindCredit, "free"))
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("customer 2 blocked by customer 1 lock")
	}
}

func TestLMAXLedgerClosed(t *testing.T) {
	l, err := NewLMAXLedger(seed(), nil, WithPartitions(2))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()
	<-l.Done()

	_, err = l.ApplyTransaction(context.Background(), mustTran(t, 1, 1, domain.TransactionKindCredit, "late"))
	assert.ErrorIs(t, err, domain.ErrLedgerClosed)
}

func TestLMAXLedgerNotStarted(t *testing.T) {
	l, err := NewLMAXLedger(seed(), nil, WithPartitions(2))
	require.NoError(t, err)

	done := make(chan error, 3)
	go func() {
		ctx := context.Background()
		_, err := l.ApplyTransaction(ctx, mustTran(t, 1, 1, domain.TransactionKindCredit, "early"))
		done <- err
		_, err = l.GetStatement(ctx, 1, 10)
		done <- err
		_, err = l.LoadAllAccounts(ctx)
		done <- err
	}()

	for i := 0; i < 3; i++ {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, domain.ErrLedgerClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("request blocked before Start")
		}
	}
}

// 額度調低後重啟，WAL 內已生效的歷史仍然完整恢復
func TestLedgerRecoversAfterLimitLowered(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "wal.log")

			w, err := wal.NewWAL(path)
			require.NoError(t, err)
			t.Cleanup(func() { _ = w.Close() })
			l := factory(t, seed(), w)
			_, err = l.ApplyTransaction(ctx, mustTran(t, 1, 800, domain.TransactionKindDebit, "a"))
			require.NoError(t, err)

			lowered := seed()
			lowered[1] = domain.NewAccount(1, 500, 0)
			w2, err := wal.NewWAL(path)
			require.NoError(t, err)
			defer w2.Close()
			recovered := factory(t, lowered, w2)

			stmt, err := recovered.GetStatement(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(-800), stmt.Balance)
			assert.Equal(t, int64(500), stmt.Limit)

			_, err = recovered.ApplyTransaction(ctx, mustTran(t, 1, 1, domain.TransactionKindDebit, "b"))
			assert.ErrorIs(t, err, domain.ErrLimitExceeded)
			res, err := recovered.ApplyTransaction(ctx, mustTran(t, 1, 400, domain.TransactionKindCredit, "c"))
			require.NoError(t, err)
			assert.Equal(t, int64(-400), res.Balance)
		})
	}
}

func TestLMAXLedgerUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l, err := NewLMAXLedger(seed(), nil, WithPartitions(1), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	tran := mustTran(t, 1, 1, domain.TransactionKindCredit, "c")
	_, err = l.ApplyTransaction(ctx, tran)
	require.NoError(t, err)
	assert.Equal(t, fixed, tran.OccurredAt)

	stmt, err := l.GetStatement(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, fixed, stmt.AsOf)
}
