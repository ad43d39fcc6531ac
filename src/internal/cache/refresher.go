package cache

import (
	"context"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ListFunc reads a listing from the store, bypassing the cache.
type ListFunc func(ctx context.Context, f model.ChallengeFilter) (model.ChallengePage, error)

// Refresher periodically re-reads the default listings into the cache.
type Refresher struct {
	sched   gocron.Scheduler
	cache   ChallengeCache
	list    ListFunc
	filters []model.ChallengeFilter
	log     *zap.Logger
}

// DefaultFilters are the listings the challenge browser opens with.
func DefaultFilters() []model.ChallengeFilter {
	return []model.ChallengeFilter{
		{},
		{Privacy: model.PrivacyPublic},
		{Status: model.StatusPending},
	}
}

func NewRefresher(c ChallengeCache, list ListFunc, filters []model.ChallengeFilter, logger *zap.Logger) (*Refresher, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Refresher{sched: sched, cache: c, list: list, filters: filters, log: logger}, nil
}

// Start runs RefreshOnce every interval until Stop.
func (r *Refresher) Start(interval time.Duration) error {
	_, err := r.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			r.RefreshOnce(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	r.sched.Start()
	r.log.Info("cache refresher started", zap.Duration("interval", interval), zap.Int("listings", len(r.filters)))
	return nil
}

func (r *Refresher) RefreshOnce(ctx context.Context) {
	for _, f := range r.filters {
		page, err := r.list(ctx, f)
		if err != nil {
			r.log.Warn("cache refresh failed", zap.String("listing", ListKey(f)), zap.Error(err))
			continue
		}
		r.cache.PutList(ctx, ListKey(f), page)
		for _, c := range page.Items {
			// a write after the listing was read may have cached a newer version
			if cur, ok := r.cache.Get(ctx, c.ID); ok && cur.Version >= c.Version {
				continue
			}
			r.cache.Put(ctx, c)
		}
	}
}

func (r *Refresher) Stop() error {
	return r.sched.Shutdown()
}
