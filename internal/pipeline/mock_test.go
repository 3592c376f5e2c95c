package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/search-harvest/internal/ledger"
	"github.com/sells-group/search-harvest/internal/model"
	"github.com/sells-group/search-harvest/internal/source"
)

// --- Source Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchPage(ctx context.Context, date time.Time, offset int64, pageSize int) (*source.Page, error) {
	args := m.Called(ctx, date, offset, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*source.Page), args.Error(1)
}

// --- Writer Mock ---

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteBatch(ctx context.Context, date time.Time, rows []model.AggregatedRecord) error {
	args := m.Called(ctx, date, rows)
	return args.Error(0)
}

// --- In-memory ledger ---

// memLedger is an append-only in-memory ledger resolving state with the
// package's pure functions. Error fields inject failures.
type memLedger struct {
	mu      sync.Mutex
	entries []model.DateCursor

	appendErr      error
	outstandingErr error
	statesErr      error
	emptyErr       error
	pruneErr       error
	pruneCalls     int
}

func (l *memLedger) Append(_ context.Context, c model.DateCursor) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	c.Date = model.Day(c.Date)
	l.entries = append(l.entries, c)
	return nil
}

func (l *memLedger) EffectiveStateFor(_ context.Context, date time.Time) (model.DateCursor, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := ledger.Effective(l.entries)[model.Day(date)]
	return c, ok, nil
}

func (l *memLedger) EffectiveStates(_ context.Context, dates []time.Time) (map[time.Time]model.DateCursor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.statesErr != nil {
		return nil, l.statesErr
	}
	all := ledger.Effective(l.entries)
	out := make(map[time.Time]model.DateCursor)
	for _, d := range dates {
		if c, ok := all[model.Day(d)]; ok {
			out[model.Day(d)] = c
		}
	}
	return out, nil
}

func (l *memLedger) OutstandingDates(_ context.Context, candidates []time.Time) ([]time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outstandingErr != nil {
		return nil, l.outstandingErr
	}
	return ledger.Outstanding(candidates, ledger.Effective(l.entries)), nil
}

func (l *memLedger) Prune(context.Context, time.Duration) (ledger.PruneResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneCalls++
	if l.pruneErr != nil {
		return ledger.PruneResult{}, l.pruneErr
	}
	return ledger.PruneResult{Deferred: true}, nil
}

func (l *memLedger) Empty(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.emptyErr != nil {
		return false, l.emptyErr
	}
	return len(l.entries) == 0, nil
}

func (l *memLedger) History(_ context.Context, date time.Time) ([]model.DateCursor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.DateCursor
	for _, e := range l.entries {
		if e.Date.Equal(model.Day(date)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) effective(date time.Time) (model.DateCursor, bool) {
	c, ok, _ := l.EffectiveStateFor(context.Background(), date)
	return c, ok
}
