package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"futuresync/internal/calendar"
	"futuresync/internal/fetch"
	"futuresync/internal/remote"
	"futuresync/internal/store"
)

// Collection names, one table per data category.
const (
	CollectionCalendar  = "trade_calendar"
	CollectionContracts = "contracts"
	CollectionDaily     = "daily_prices"
	CollectionHoldings  = "holdings"
)

// Natural keys per collection.
var (
	keysCalendar  = []string{"exchange", "cal_date"}
	keysContracts = []string{"exchange", "symbol"}
	keysDaily     = []string{"exchange", "symbol", "trade_date"}
	keysHoldings  = []string{"exchange", "symbol", "trade_date", "broker"}
)

// Sink is the persistence surface a chain writes through.
type Sink interface {
	EnsureCollection(ctx context.Context, collection string, keys []string) error
	Upsert(ctx context.Context, collection string, keys []string, batch remote.RecordBatch) (store.UpsertStats, error)
}

// Pipeline wires one vendor source and one sink into fetch→upsert chains,
// one per data category.
type Pipeline struct {
	src   remote.Source
	sink  Sink
	orch  *fetch.Orchestrator
	cache *calendar.Cache
	log   *logrus.Entry
}

// New creates a Pipeline. cache is shared between the orchestrator's range
// resolution and the calendar chain's write-through invalidation.
func New(src remote.Source, sink Sink, orch *fetch.Orchestrator, cache *calendar.Cache, log *logrus.Entry) *Pipeline {
	return &Pipeline{src: src, sink: sink, orch: orch, cache: cache, log: log}
}

// SaveCalendar fetches trading days for each exchange and persists them.
// The range is passed to the vendor as-is instead of being pre-resolved,
// since the calendar endpoint itself is the range resolver.
func (p *Pipeline) SaveCalendar(ctx context.Context, q fetch.Query) (*SaveResult, error) {
	start, end := q.StartDate, q.EndDate
	if q.Date != "" {
		if start != "" || end != "" {
			return nil, remote.NewConfigError("date and date range are mutually exclusive")
		}
		start, end = q.Date, q.Date
	}

	flat := fetch.Query{Exchanges: q.Exchanges}
	res, err := p.save(ctx, CollectionCalendar, keysCalendar, flat, func(ctx context.Context, t fetch.Task) (remote.RecordBatch, error) {
		days, err := p.src.TradingDays(ctx, t.Exchange, start, end)
		if err != nil {
			return nil, err
		}
		batch := make(remote.RecordBatch, 0, len(days))
		for _, d := range days {
			batch = append(batch, remote.Record{"exchange": t.Exchange, "cal_date": d})
		}
		return batch, nil
	})
	if err != nil {
		return nil, err
	}

	// Cached range resolutions may now be stale.
	if res.Success && p.cache != nil {
		for _, exchange := range q.Exchanges {
			p.cache.Invalidate(exchange)
		}
	}
	return res, nil
}

// SaveContracts fetches the instrument list per exchange and persists it.
// Contracts have no date or symbol dimension.
func (p *Pipeline) SaveContracts(ctx context.Context, q fetch.Query) (*SaveResult, error) {
	flat := fetch.Query{Exchanges: q.Exchanges}
	return p.save(ctx, CollectionContracts, keysContracts, flat, func(ctx context.Context, t fetch.Task) (remote.RecordBatch, error) {
		return p.src.Contracts(ctx, t.Exchange)
	})
}

// SaveDaily fetches daily prices over the full exchange × date × symbol
// fan-out and persists them.
func (p *Pipeline) SaveDaily(ctx context.Context, q fetch.Query) (*SaveResult, error) {
	return p.save(ctx, CollectionDaily, keysDaily, q, func(ctx context.Context, t fetch.Task) (remote.RecordBatch, error) {
		return p.src.Daily(ctx, t.Exchange, t.Symbol, t.Date)
	})
}

// SaveHoldings fetches broker position-holding rankings over the full
// fan-out and persists them.
func (p *Pipeline) SaveHoldings(ctx context.Context, q fetch.Query) (*SaveResult, error) {
	return p.save(ctx, CollectionHoldings, keysHoldings, q, func(ctx context.Context, t fetch.Task) (remote.RecordBatch, error) {
		return p.src.Holdings(ctx, t.Exchange, t.Symbol, t.Date)
	})
}

// save is the common chain body: ensure the collection, fetch, fold task
// failures into the result, upsert, complete. Only configuration errors
// escape as errors; everything else is captured in the SaveResult.
func (p *Pipeline) save(ctx context.Context, collection string, keys []string, q fetch.Query, call fetch.CallFunc) (*SaveResult, error) {
	res := NewSaveResult()
	log := p.log.WithField("collection", collection)

	if err := p.sink.EnsureCollection(ctx, collection, keys); err != nil {
		log.WithError(err).Error("ensure collection failed")
		res.AddError(KindSaveError, err.Error())
		res.Complete()
		return res, nil
	}

	fr, err := p.orch.Fetch(ctx, q, call)
	if err != nil {
		if remote.IsConfig(err) {
			return nil, err
		}
		// Range resolution failing after retries lands here; the chain still
		// completes and reports, like any other captured failure.
		log.WithError(err).Error("fetch failed")
		res.AddError(KindFetchError, err.Error())
		res.Complete()
		return res, nil
	}

	for _, f := range fr.Failures {
		res.AddError(KindFetchError, f.Error())
	}

	if fr.NoData {
		log.Warn("fetch returned no records")
		res.AddError(KindNoData, "fetch returned no records")
		res.Complete()
		return res, nil
	}

	stats, err := p.sink.Upsert(ctx, collection, keys, fr.Batch)
	if err != nil {
		log.WithError(err).Error("upsert failed")
		res.AddError(KindSaveError, err.Error())
		res.Complete()
		return res, nil
	}

	res.Inserted = stats.Upserted
	res.Modified = stats.Modified
	res.Success = true
	res.Complete()

	log.WithFields(logrus.Fields{
		"inserted": res.Inserted,
		"modified": res.Modified,
		"errors":   res.ErrorCount,
		"duration": res.Duration(),
	}).Info("chain completed")

	return res, nil
}
