package testutil

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"futuresync/internal/remote"
)

// MockSource is a mock implementation of the remote.Source interface for testing
type MockSource struct {
	HoldingsFunc    func(ctx context.Context, exchange, symbol, date string) (remote.RecordBatch, error)
	DailyFunc       func(ctx context.Context, exchange, symbol, date string) (remote.RecordBatch, error)
	ContractsFunc   func(ctx context.Context, exchange string) (remote.RecordBatch, error)
	TradingDaysFunc func(ctx context.Context, exchange, start, end string) ([]string, error)
}

// Holdings implements the Source interface
func (m *MockSource) Holdings(ctx context.Context, exchange, symbol, date string) (remote.RecordBatch, error) {
	if m.HoldingsFunc != nil {
		return m.HoldingsFunc(ctx, exchange, symbol, date)
	}
	return nil, nil
}

// Daily implements the Source interface
func (m *MockSource) Daily(ctx context.Context, exchange, symbol, date string) (remote.RecordBatch, error) {
	if m.DailyFunc != nil {
		return m.DailyFunc(ctx, exchange, symbol, date)
	}
	return nil, nil
}

// Contracts implements the Source interface
func (m *MockSource) Contracts(ctx context.Context, exchange string) (remote.RecordBatch, error) {
	if m.ContractsFunc != nil {
		return m.ContractsFunc(ctx, exchange)
	}
	return nil, nil
}

// TradingDays implements the Source interface
func (m *MockSource) TradingDays(ctx context.Context, exchange, start, end string) ([]string, error) {
	if m.TradingDaysFunc != nil {
		return m.TradingDaysFunc(ctx, exchange, start, end)
	}
	return nil, nil
}

// Records builds a batch of n records for one exchange/symbol/date, with the
// broker key varied so natural keys stay distinct.
func Records(exchange, symbol, date string, n int) remote.RecordBatch {
	batch := make(remote.RecordBatch, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, remote.Record{
			"exchange":   exchange,
			"symbol":     symbol,
			"trade_date": date,
			"broker":     fmt.Sprintf("broker%03d", i),
			"vol":        float64(100 + i),
		})
	}
	return batch
}

// DiscardLogger returns a logger entry whose output is thrown away.
func DiscardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
