// Package sluice provides the job admission and dispatch layer of a
// web-scraping backend. It sits between the public HTTP API and the worker
// pool that executes scrape jobs: every submitted job is either admitted
// into the worker queue immediately or parked in a per-team deferred queue
// until a concurrency slot frees.
//
// Sluice is designed as a library, not a service. Import it, configure a
// store and a broker, and submit jobs through the engine.
//
// # Quick Start
//
//	s, err := sluice.New(
//	    sluice.WithStore(redisStore),
//	    sluice.WithLogger(logger),
//	)
//	eng, err := engine.Build(s, engine.WithBroker(redisBroker))
//	handle, err := eng.Submit(ctx, j)
//
// # Architecture
//
// Sluice follows a composable store pattern where each subsystem (ledger,
// crawl, result, event, notify, deadletter) defines its own store
// interface. A single backend implements all of them.
//
// Admission is three-tiered: an administrative override, an optional
// per-crawl ceiling, and the per-team ceiling. Active jobs are tracked as
// TTL-guarded ledger entries so crashed workers cannot hold slots forever;
// deferred jobs drain back into the worker queue as capacity frees.
package sluice
