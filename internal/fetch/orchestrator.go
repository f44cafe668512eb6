package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"futuresync/internal/calendar"
	"futuresync/internal/executor"
	"futuresync/internal/ratelimit"
	"futuresync/internal/remote"
	"futuresync/internal/retry"
)

// Query selects the dimension values of one logical fetch. Either Date or the
// StartDate/EndDate pair may be set, never both. Symbols may be empty when the
// category has no symbol dimension.
type Query struct {
	Exchanges []string
	Symbols   []string
	Date      string
	StartDate string
	EndDate   string
}

// Task is the ephemeral descriptor of one remote call. Dimension fields that
// do not apply to the category are left empty.
type Task struct {
	Exchange string
	Symbol   string
	Date     string
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Exchange, t.Symbol, t.Date)
}

// TaskError records one task that failed after retries were exhausted.
type TaskError struct {
	Task Task
	Err  error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

// Result is the outcome of one fetch: the union of every successful task's
// rows, plus the tasks that failed. NoData distinguishes "query legitimately
// empty" from call failure; it is reportable, not an error.
type Result struct {
	Batch    remote.RecordBatch
	NoData   bool
	Failures []TaskError
}

// CallFunc performs the remote call for one task.
type CallFunc func(ctx context.Context, t Task) (remote.RecordBatch, error)

// DaysFunc resolves a date range to concrete trading days.
type DaysFunc func(ctx context.Context, exchange, start, end string) ([]string, error)

// Orchestrator expands one Query into the Cartesian product of Tasks and
// drives them through the bounded executor, the rate limiter and the retry
// policy. Each task runs as retry(rateLimited(call)), so every attempt
// re-acquires admission.
type Orchestrator struct {
	limiter       *ratelimit.Limiter
	policy        retry.Policy
	maxConcurrent int
	days          DaysFunc
	cache         *calendar.Cache
	log           *logrus.Entry
}

// New creates an Orchestrator. days is the calendar resolver used when a query
// supplies a date range; it runs under the same rate limit and retry policy as
// the data calls. cache may be shared across orchestrators of one pipeline.
func New(limiter *ratelimit.Limiter, policy retry.Policy, maxConcurrent int, days DaysFunc, cache *calendar.Cache, log *logrus.Entry) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if cache == nil {
		cache = calendar.NewCache()
	}
	return &Orchestrator{
		limiter:       limiter,
		policy:        policy,
		maxConcurrent: maxConcurrent,
		days:          days,
		cache:         cache,
		log:           log,
	}
}

// Fetch runs the full fan-out for q. A task that exhausts its retries is
// counted in Result.Failures and contributes nothing to the merged batch; it
// never aborts siblings. Only configuration errors are returned as errors.
//
// Overlapping dimension values may place the same logical record in the batch
// more than once; deduplication is the sink's job, keyed by natural key.
func (o *Orchestrator) Fetch(ctx context.Context, q Query, call CallFunc) (*Result, error) {
	if err := validate(q); err != nil {
		return nil, err
	}

	tasks, err := o.expand(ctx, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	completed := 0
	results := executor.Collect(ctx, tasks, o.maxConcurrent, func(ctx context.Context, t Task) taskResult {
		return o.runTask(ctx, t, call)
	}, func(r taskResult) {
		completed++
		if r.err != nil {
			o.log.WithField("task", r.task.String()).WithError(r.err).Warn("task failed after retries")
			return
		}
		o.log.WithFields(logrus.Fields{
			"task": r.task.String(),
			"done": completed,
			"of":   len(tasks),
		}).Debug("task completed")
	})

	res := &Result{}
	for _, r := range results {
		if r.err != nil {
			res.Failures = append(res.Failures, TaskError{Task: r.task, Err: r.err})
			continue
		}
		res.Batch = append(res.Batch, r.batch...)
	}
	res.NoData = len(res.Batch) == 0

	o.log.WithFields(logrus.Fields{
		"tasks":    len(tasks),
		"failed":   len(res.Failures),
		"records":  len(res.Batch),
		"duration": time.Since(start),
	}).Info("fetch completed")

	return res, nil
}

type taskResult struct {
	task  Task
	batch remote.RecordBatch
	err   error
}

func (o *Orchestrator) runTask(ctx context.Context, t Task, call CallFunc) taskResult {
	var batch remote.RecordBatch
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		if err := o.limiter.Acquire(ctx); err != nil {
			return err
		}
		b, err := call(ctx, t)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	return taskResult{task: t, batch: batch, err: err}
}

// expand builds the Cartesian product of exchanges × dates × symbols.
// A date range is first resolved to concrete trading days per exchange, since
// the high-volume endpoints are indexed by discrete day.
func (o *Orchestrator) expand(ctx context.Context, q Query) ([]Task, error) {
	symbols := q.Symbols
	if len(symbols) == 0 {
		symbols = []string{""}
	}

	var tasks []Task
	for _, exchange := range q.Exchanges {
		dates, err := o.resolveDates(ctx, exchange, q)
		if err != nil {
			return nil, err
		}
		for _, date := range dates {
			for _, symbol := range symbols {
				tasks = append(tasks, Task{Exchange: exchange, Symbol: symbol, Date: date})
			}
		}
	}
	return tasks, nil
}

func (o *Orchestrator) resolveDates(ctx context.Context, exchange string, q Query) ([]string, error) {
	if q.Date != "" {
		return []string{q.Date}, nil
	}
	if q.StartDate == "" && q.EndDate == "" {
		return []string{""}, nil
	}

	key := calendar.Key{Exchange: exchange, Start: q.StartDate, End: q.EndDate}
	if days, ok := o.cache.Get(key); ok {
		return days, nil
	}

	var days []string
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		if err := o.limiter.Acquire(ctx); err != nil {
			return err
		}
		d, err := o.days(ctx, exchange, q.StartDate, q.EndDate)
		if err != nil {
			return err
		}
		days = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve trading days for %s: %w", exchange, err)
	}

	o.cache.Put(key, days)
	return days, nil
}

func validate(q Query) error {
	if len(q.Exchanges) == 0 {
		return remote.NewConfigError("no exchanges selected")
	}
	if q.Date != "" && (q.StartDate != "" || q.EndDate != "") {
		return remote.NewConfigError("date and date range are mutually exclusive")
	}
	if (q.StartDate == "") != (q.EndDate == "") {
		return remote.NewConfigError("date range requires both start_date and end_date")
	}
	if q.StartDate != "" && q.StartDate > q.EndDate {
		return remote.NewConfigError("start_date %s is after end_date %s", q.StartDate, q.EndDate)
	}
	return nil
}
