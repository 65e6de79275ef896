package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/abq-pulse/trafficwatch/internal/collector"
	"github.com/abq-pulse/trafficwatch/internal/quota"
	"github.com/abq-pulse/trafficwatch/internal/store"
	"github.com/abq-pulse/trafficwatch/internal/tomtom"
)

// env bundles the shared runtime pieces commands need.
type env struct {
	store   store.Store
	counter quota.Counter
	client  *tomtom.Client
	loc     *time.Location
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		st.Close()
		return nil, eris.Wrapf(err, "load timezone %s", cfg.Quota.Timezone)
	}

	var counter quota.Counter
	if cfg.Quota.Persist {
		counter = quota.NewPersisted(st, cfg.Quota.DailyLimit, loc)
	} else {
		counter = quota.NewMemory(cfg.Quota.DailyLimit, loc)
	}

	client := tomtom.New(tomtom.Options{
		Key:        cfg.TomTom.Key,
		BaseURL:    cfg.TomTom.BaseURL,
		Unit:       cfg.TomTom.Unit,
		Timeout:    time.Duration(cfg.TomTom.TimeoutSecs) * time.Second,
		RatePerSec: cfg.TomTom.RatePerSec,
	})

	return &env{store: st, counter: counter, client: client, loc: loc}, nil
}

func (e *env) Close() {
	_ = e.store.Close()
}

func (e *env) newCollector() *collector.Collector {
	return collector.New(e.client, e.store, e.counter, e.loc, cfg.Server.Workers)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "trafficwatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
