// Command bench runs a synthetic workload against the cache and
// exposes optional pprof/Prometheus endpoints. Flag defaults can be
// overridden through BENCH_* environment variables, which makes the
// tool easy to drive from container entrypoints.
package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/shardkv/cache"
	pmet "github.com/IvanBrykalov/shardkv/metrics/prom"
	"github.com/IvanBrykalov/shardkv/tuning"
)

func envInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		shards   = flag.Int("shards", envInt("BENCH_SHARDS", 0), "shard count (0=auto, -1=host-tuned)")
		usecas   = flag.Bool("cas", envInt("BENCH_CAS", 0) != 0, "enable CAS tracking")
		workers  = flag.Int("workers", envInt("BENCH_WORKERS", 2*runtime.GOMAXPROCS(0)), "worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", envInt("BENCH_READS", 80), "read percentage [0..100]")
		keys     = flag.Int("keys", envInt("BENCH_KEYS", 1_000_000), "keyspace size")
		ttlPct   = flag.Int("ttl", envInt("BENCH_TTL", 10), "percentage of writes carrying a short TTL")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", envString("BENCH_PPROF", ""), "serve pprof at addr (empty = disabled)")
		metricsAddr = flag.String("http", envString("BENCH_HTTP", ":8080"), "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Info().Str("addr", *pprofAddr).Msg("pprof listening")
			log.Error().Err(http.ListenAndServe(*pprofAddr, nil)).Msg("pprof server stopped")
		}()
	}

	metrics := pmet.New(nil, "shardkv", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info().Str("addr", *metricsAddr).Msg("metrics listening")
		log.Error().Err(http.ListenAndServe(*metricsAddr, nil)).Msg("metrics server stopped")
	}()

	nshards := *shards
	if nshards < 0 {
		rec := tuning.Recommend()
		nshards = rec.Shards
		log.Info().
			Int("backlog", rec.Backlog).
			Int("queuesize", rec.QueueSize).
			Int("maxconns", rec.MaxConns).
			Int("shards", rec.Shards).
			Msg("host-tuned recommendation")
	}

	c := cache.New(cache.Options{
		Shards:  nshards,
		UseCAS:  *usecas,
		Metrics: metrics,
	})
	defer func() { _ = c.Close() }()

	// Preload half the keyspace for a realistic hit-rate.
	for i := 0; i < *keys/2; i++ {
		c.Store([]byte("k:"+strconv.Itoa(i)), []byte("v"+strconv.Itoa(i)), nil)
	}
	log.Info().
		Int("shards", c.NShards()).
		Int("workers", *workers).
		Int("keys", *keys).
		Int("preloaded", c.Count()).
		Int64("seed", *seed).
		Msg("starting workload")

	var reads, writes, hits, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < *workers; w++ {
		id := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(*seed + int64(id)*9973))
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				atomic.AddUint64(&total, 1)
				k := []byte("k:" + strconv.Itoa(r.Intn(*keys)))
				if r.Intn(100) < *readPct {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(k); ok {
						atomic.AddUint64(&hits, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					var o *cache.StoreOptions
					if r.Intn(100) < *ttlPct {
						o = &cache.StoreOptions{TTL: time.Duration(10+r.Intn(90)) * time.Millisecond}
					}
					c.Store(k, []byte("v"+strconv.Itoa(r.Int())), o)
				}
			}
		})
	}

	// Periodic cooperative sweeping, guided by SweepPoll.
	g.Go(func() error {
		tick := time.NewTicker(250 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tick.C:
				if c.SweepPoll(0) > 0.1 {
					swept, kept := c.Sweep()
					log.Debug().Int("swept", swept).Int("kept", kept).Msg("sweep")
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("workload failed")
	}
	elapsed := time.Since(start)

	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(atomic.LoadUint64(&hits)) / float64(readsN) * 100
	}
	log.Info().
		Uint64("ops", ops).
		Float64("ops_per_sec", float64(ops)/elapsed.Seconds()).
		Uint64("reads", readsN).
		Uint64("writes", atomic.LoadUint64(&writes)).
		Float64("hit_rate_pct", hitRate).
		Int("resident", c.Count()).
		Int64("bytes", c.Size()).
		Uint64("total_ops_engine", c.Total()).
		Dur("elapsed", elapsed).
		Msg("done")
}
