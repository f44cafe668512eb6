package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"futuresync/internal/fetch"
)

// Chain is one independently runnable fetch→upsert sequence.
type Chain struct {
	Name string
	Run  func(ctx context.Context) (*SaveResult, error)
}

type chainOutcome struct {
	name   string
	result *SaveResult
	err    error
}

// RunChains executes every chain concurrently and collects one result per
// chain, keyed by name. A chain that returns a hard error is logged and left
// absent from the map; its siblings run to completion regardless, so the
// wall-clock cost approaches the slowest chain rather than the sum.
func RunChains(ctx context.Context, chains []Chain, log *logrus.Entry) map[string]*SaveResult {
	results := make(map[string]*SaveResult, len(chains))
	if len(chains) == 0 {
		return results
	}

	outcomes := make(chan chainOutcome, len(chains))
	var wg sync.WaitGroup

	for _, c := range chains {
		wg.Add(1)
		go func(c Chain) {
			defer wg.Done()
			res, err := c.Run(ctx)
			outcomes <- chainOutcome{name: c.Name, result: res, err: err}
		}(c)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err != nil {
			log.WithField("chain", o.name).WithError(o.err).Error("chain failed")
			continue
		}
		results[o.name] = o.result
	}

	return results
}

// SaveAll runs every category chain for q concurrently. Absent map entries
// mark chains that failed outright; present entries may still carry partial
// errors in their SaveResult.
func (p *Pipeline) SaveAll(ctx context.Context, q fetch.Query) map[string]*SaveResult {
	log := p.log.WithField("run_id", uuid.NewString())
	log.WithField("exchanges", q.Exchanges).Info("starting full sync")

	chains := []Chain{
		{Name: "calendar", Run: func(ctx context.Context) (*SaveResult, error) { return p.SaveCalendar(ctx, q) }},
		{Name: "contracts", Run: func(ctx context.Context) (*SaveResult, error) { return p.SaveContracts(ctx, q) }},
		{Name: "daily", Run: func(ctx context.Context) (*SaveResult, error) { return p.SaveDaily(ctx, q) }},
		{Name: "holdings", Run: func(ctx context.Context) (*SaveResult, error) { return p.SaveHoldings(ctx, q) }},
	}

	return RunChains(ctx, chains, log)
}
