package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"exchange/internal/chaos"
	"exchange/internal/core"
	"exchange/internal/obs"
	"exchange/internal/ops"
	"exchange/internal/schema"
)

func main() {
	configPath := flag.String("config", "configs/exchange.json", "Path to JSON config")
	loadState := flag.Int64("load-state", -1, "State id to recover from (-1=use config)")
	generate := flag.Int("generate", 0, "Number of random commands to submit after bootstrap")
	seed := flag.Int64("seed", 1, "Random workload seed")
	users := flag.Int("users", 16, "Number of random workload users")
	persistState := flag.Int64("persist-state", 0, "State id to persist after the session (0=skip)")
	depth := flag.Int("depth", 10, "Order book depth to print")
	serve := flag.Bool("serve", false, "Keep running until interrupted")
	latest := flag.Bool("latest", false, "Recover from the newest complete state (disk store only)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *loadState >= 0 {
		loaded.Core.LoadStateID = *loadState
	}

	if loaded.Metrics.PyroscopeServer != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Metrics.AppName,
			ServerAddress:   loaded.Metrics.PyroscopeServer,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	loaded.Core.Metrics = metrics
	loaded.Core.OnFault = func(err error) {
		logs.Errorf("pipeline halted: %+v", err)
	}
	if loaded.Metrics.Listen != "" {
		srv := serveMetrics(loaded.Metrics.Listen, metrics)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	if err := run(loaded, session{
		generate:     *generate,
		seed:         *seed,
		users:        *users,
		persistState: *persistState,
		depth:        *depth,
		serve:        *serve,
		latest:       *latest,
	}); err != nil {
		log.Fatalf("exchange failed: %+v", err)
	}
}

type session struct {
	generate     int
	seed         int64
	users        int
	persistState int64
	depth        int
	serve        bool
	latest       bool
}

type latestStater interface {
	LatestState(riskShards, matchingShards int) (int64, error)
}

func serveMetrics(addr string, metrics *obs.Metrics) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(obs.NewCollector(metrics))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("metrics server failed: %+v", err)
		}
	}()
	logs.Infof("metrics listening on %s", addr)
	return srv
}

func run(loaded ops.Loaded, s session) error {
	ctx := context.Background()
	processor, err := loaded.Store.Open()
	if err != nil {
		return err
	}
	defer func() {
		if err := processor.Close(); err != nil {
			logs.Errorf("close store: %+v", err)
		}
	}()

	if s.latest {
		ls, ok := processor.(latestStater)
		if !ok {
			return errors.Errorf("store %s cannot list states", loaded.Store.Kind)
		}
		id, err := ls.LatestState(loaded.Core.RiskShards, loaded.Core.MatchingShards)
		if err != nil {
			return err
		}
		loaded.Core.LoadStateID = id
		logs.Infof("recovering from latest state %d", id)
	}

	results := core.NewResults()
	ex, err := core.New(loaded.Core, processor, results.Consume)
	if err != nil {
		return err
	}
	if err := ex.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := ex.Shutdown(shutdownCtx); err != nil {
			logs.Errorf("shutdown: %+v", err)
		}
		logMetrics(loaded.Core.Metrics)
	}()

	if loaded.Core.LoadStateID == 0 {
		if cmds := loaded.Bootstrap(); len(cmds) > 0 {
			if _, err := ex.SubmitBatch(cmds); err != nil {
				return err
			}
			logs.Infof("bootstrap submitted, commands: %d", len(cmds))
		}
	}

	if s.generate > 0 {
		if err := generate(ex, loaded, s); err != nil {
			return err
		}
	}

	if s.persistState > 0 {
		seq, err := ex.PersistState(s.persistState)
		if err != nil {
			return err
		}
		cmd, err := results.Wait(ctx, seq)
		if err != nil {
			return err
		}
		logs.Infof("persist state %d: %s", s.persistState, cmd.Result)
	}

	if err := printBooks(ctx, ex, results, loaded.Registry, s.depth); err != nil {
		return err
	}
	if err := printUsers(ctx, ex, results, loaded); err != nil {
		return err
	}

	if s.serve {
		logs.Info("exchange running, waiting for shutdown signal")
		<-sys.Shutdown()
	}
	return ex.Err()
}

// generate submits a random workload over the configured symbols. Users
// already created by the bootstrap are rejected with their own result
// code, which is harmless.
func generate(ex *core.Exchange, loaded ops.Loaded, s session) error {
	gen, err := chaos.NewGenerator(chaos.GeneratorConfig{
		Seed:    s.seed,
		Users:   s.users,
		Symbols: loaded.Registry.Specs(),
	})
	if err != nil {
		return err
	}
	start := time.Now()
	submit := func(cmd schema.Command) error {
		_, err := ex.Submit(&cmd)
		return err
	}
	for _, cmd := range gen.Setup() {
		if cmd.Kind == schema.CommandBinaryData && len(loaded.Registry.Specs()) > 0 {
			continue
		}
		if err := submit(cmd); err != nil {
			return err
		}
	}
	for i := 0; i < s.generate; i++ {
		if err := submit(gen.Next()); err != nil {
			return err
		}
	}
	logs.Infof("generated %d commands in %s", s.generate, time.Since(start))
	return nil
}

func printBooks(ctx context.Context, ex *core.Exchange, results *core.Results, reg *schema.Registry, depth int) error {
	for _, spec := range reg.Specs() {
		seq, err := ex.OrderBook(spec.ID, depth)
		if err != nil {
			return err
		}
		cmd, err := results.Wait(ctx, seq)
		if err != nil {
			return err
		}
		sym, _ := reg.Symbol(spec.ID)
		if cmd.MarketData == nil {
			logs.Infof("book %s: %s", sym.Name, cmd.Result)
			continue
		}
		logs.Infof("book %s:\n%s", sym.Name, cmd.MarketData.String(int32(sym.PriceScale)))
	}
	return nil
}

func printUsers(ctx context.Context, ex *core.Exchange, results *core.Results, loaded ops.Loaded) error {
	names := make(map[schema.Currency]schema.CurrencyInfo)
	for _, c := range loaded.Registry.Currencies() {
		names[c.ID] = c
	}
	for _, u := range loaded.Users {
		seq, err := ex.UserReport(u.UID)
		if err != nil {
			return err
		}
		cmd, err := results.Wait(ctx, seq)
		if err != nil {
			return err
		}
		if cmd.Report == nil {
			logs.Infof("user %d: %s", u.UID, cmd.Result)
			continue
		}
		for _, b := range cmd.Report.Balances {
			info := names[b.Currency]
			logs.Infof("user %d %s total: %s, held: %s", u.UID, info.Name,
				schema.FormatScaled(b.Total, int32(info.Scale)),
				schema.FormatScaled(b.Held, int32(info.Scale)))
		}
		logs.Infof("user %d open orders: %d, positions: %d", u.UID, cmd.Report.Orders, len(cmd.Report.Positions))
	}
	return nil
}

func logMetrics(m *obs.Metrics) {
	snap := m.Snapshot()
	logs.Infof("metrics: %+v", snap)
}
