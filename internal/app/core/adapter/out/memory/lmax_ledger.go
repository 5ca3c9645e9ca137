package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/wal"
)

type requestKind uint8

const (
	requestApply requestKind = iota
	requestStatement
	requestSnapshot
)

// transactionRequest 交易請求包裝channel，讓呼叫端可以等待結果
type transactionRequest struct {
	kind       requestKind
	tran       *domain.Transaction
	customerID int64
	size       int
	result     chan transactionResult // 呼叫端等這個 channel
}

type transactionResult struct {
	balance   domain.Balance
	statement *domain.Statement
	account   domain.Account
	err       error
}

// partition 一個分區由單一 goroutine 獨佔，分區內的帳戶不需要任何鎖
type partition struct {
	accounts map[int64]*accountState
	// 輸送帶 負責接收交易
	requests chan *transactionRequest
}

// LMAXLedger 單一寫入者模型的帳本
// 帳戶依 customerID % partitions 分到各分區，每個分區一條輸送帶、一個寫入者
//
// ApplyTransaction(等待) -> Channel -> Run Loop (分區) -> WAL -> State Update -> Result Channel -> ApplyTransaction(收到結果)
type LMAXLedger struct {
	partitions []*partition
	// Write-Ahead Logging
	wal   *wal.WAL
	clock func() time.Time
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	logger      zerolog.Logger

	startOnce sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup
	done      chan struct{}
}

// NewLMAXLedger 建立一個新的 LMAXLedger 實例，必須呼叫 Start 之後才會處理請求
//
// 參數:
//
//	accounts: 初始帳戶資料 Map
//	wal: Write-Ahead Log 實例
//
// 回傳:
//
//	*LMAXLedger: LMAXLedger 實例
//	error: 初始化錯誤
func NewLMAXLedger(accounts map[int64]*domain.Account, wal *wal.WAL, opts ...Option) (*LMAXLedger, error) {
	o := newOptions(opts)
	ledger := &LMAXLedger{
		partitions: make([]*partition, o.partitions),
		wal:        wal,
		clock:      o.clock,
		logger:     o.logger,
		done:       make(chan struct{}),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &transactionRequest{
					result: make(chan transactionResult, 1),
				}
			},
		},
	}
	for i := range ledger.partitions {
		ledger.partitions[i] = &partition{
			accounts: make(map[int64]*accountState),
			requests: make(chan *transactionRequest, o.queueSize),
		}
	}

	states := newAccountStates(accounts, o.historySize)
	for id, state := range states {
		ledger.partitionOf(id).accounts[id] = state
	}

	// 在啟動前先恢復資料
	replayed, err := recoverFromWAL(wal, states, ledger.logger)
	if err != nil {
		return nil, err
	}
	ledger.logger.Info().
		Int("accounts", len(accounts)).
		Int("partitions", len(ledger.partitions)).
		Int("replayed", replayed).
		Msg("lmax ledger ready")
	return ledger, nil
}

func (l *LMAXLedger) partitionOf(customerID int64) *partition {
	return l.partitions[uint64(customerID)%uint64(len(l.partitions))]
}

// Start 啟動所有分區的核心引擎 (非同步)，ctx 結束後處理完剩下的請求才停止
func (l *LMAXLedger) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.wg.Add(len(l.partitions))
		for _, p := range l.partitions {
			go l.run(ctx, p)
		}
		l.started.Store(true)
		go func() {
			l.wg.Wait()
			close(l.done)
		}()
	})
}

// Done 所有分區停止後關閉
func (l *LMAXLedger) Done() <-chan struct{} {
	return l.done
}

func (l *LMAXLedger) run(ctx context.Context, p *partition) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的交易處理完
			l.drain(p)
			return
		case req := <-p.requests:
			l.process(p, req)
		}
	}
}

func (l *LMAXLedger) drain(p *partition) {
	for {
		select {
		case req := <-p.requests:
			l.process(p, req)
		default:
			return
		}
	}
}

// process 處理單筆請求並回傳結果
func (l *LMAXLedger) process(p *partition, req *transactionRequest) {
	var res transactionResult
	switch req.kind {
	case requestApply:
		state := p.accounts[req.tran.CustomerID]
		res.balance, res.err = state.apply(req.tran, l.wal, l.clock())
	case requestStatement:
		res.statement = p.accounts[req.customerID].statement(req.size, l.clock())
	case requestSnapshot:
		res.account = p.accounts[req.customerID].account
	}
	req.result <- res
}

// submit 把請求放上輸送帶並等待結果
// 一旦放上輸送帶就一定等到結果 (或引擎停止且確定未處理)，不會因 ctx 取消而回報錯誤的狀態
// Start 之前沒有寫入者，直接回傳 ErrLedgerClosed
func (l *LMAXLedger) submit(ctx context.Context, p *partition, req *transactionRequest) (transactionResult, error) {
	if !l.started.Load() {
		l.requestPool.Put(req)
		return transactionResult{}, domain.ErrLedgerClosed
	}

	// 清空 Channel (雖然理論上應該是空的，但保險起見)
	select {
	case <-req.result:
	default:
	}

	select {
	case p.requests <- req:
	case <-l.done:
		return transactionResult{}, domain.ErrLedgerClosed
	case <-ctx.Done():
		return transactionResult{}, ctx.Err()
	}

	select {
	case res := <-req.result:
		l.requestPool.Put(req)
		return res, nil
	case <-l.done:
		// 引擎停止前已處理的請求，結果一定已經在 channel 裡
		select {
		case res := <-req.result:
			return res, nil
		default:
			return transactionResult{}, domain.ErrLedgerClosed
		}
	}
}

func (l *LMAXLedger) newRequest(kind requestKind) *transactionRequest {
	req := l.requestPool.Get().(*transactionRequest)
	req.kind = kind
	req.tran = nil
	req.customerID = 0
	req.size = 0
	return req
}

// ApplyTransaction 接收交易請求
func (l *LMAXLedger) ApplyTransaction(ctx context.Context, tran *domain.Transaction) (domain.Balance, error) {
	p := l.partitionOf(tran.CustomerID)
	// 分區的 Map 建構後不再寫入，可以在寫入者之外讀取
	if _, ok := p.accounts[tran.CustomerID]; !ok {
		return domain.Balance{}, domain.ErrAccountNotFound
	}

	req := l.newRequest(requestApply)
	req.tran = tran
	res, err := l.submit(ctx, p, req)
	if err != nil {
		return domain.Balance{}, err
	}
	return res.balance, res.err
}

// GetStatement 由分區寫入者產生快照，不會看到一半的更新
func (l *LMAXLedger) GetStatement(ctx context.Context, customerID int64, size int) (*domain.Statement, error) {
	p := l.partitionOf(customerID)
	if _, ok := p.accounts[customerID]; !ok {
		return nil, domain.ErrAccountNotFound
	}

	req := l.newRequest(requestStatement)
	req.customerID = customerID
	req.size = size
	res, err := l.submit(ctx, p, req)
	if err != nil {
		return nil, err
	}
	return res.statement, nil
}

// LoadAllAccounts 逐一向各分區取得帳戶快照
func (l *LMAXLedger) LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error) {
	out := make(map[int64]*domain.Account)
	for _, p := range l.partitions {
		for id := range p.accounts {
			req := l.newRequest(requestSnapshot)
			req.customerID = id
			res, err := l.submit(ctx, p, req)
			if err != nil {
				return nil, err
			}
			acc := res.account
			out[id] = &acc
		}
	}
	return out, nil
}

var _ usecase.Ledger = (*LMAXLedger)(nil)
