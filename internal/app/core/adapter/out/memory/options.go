package memory

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
)

type options struct {
	historySize int
	partitions  int
	queueSize   int
	clock       func() time.Time
	logger      zerolog.Logger
}

// Option 設定記憶體帳本
type Option func(*options)

// WithHistorySize 每個帳戶保留在記憶體的最近交易筆數
func WithHistorySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historySize = n
		}
	}
}

// WithPartitions LMAXLedger 的分區數 (每個分區一個寫入者)
func WithPartitions(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.partitions = n
		}
	}
}

// WithQueueSize LMAXLedger 每個分區輸送帶的 buffer 大小
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithClock 替換時間來源 (測試用)
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{
		historySize: domain.DefaultStatementSize,
		partitions:  runtime.NumCPU(),
		queueSize:   1000,
		clock:       time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
