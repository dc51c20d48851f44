package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/yanun0323/errors"

	"exchange/internal/chaos"
	"exchange/internal/core"
	"exchange/internal/journal"
	"exchange/internal/ops"
	"exchange/internal/state"
)

func main() {
	storeKind := flag.String("store", ops.StoreMemory, "Store kind (memory, disk, badger, sqlite)")
	dir := flag.String("dir", "testdata/chaos", "Store directory for disk and badger")
	commands := flag.Int("commands", 20000, "Number of random commands")
	users := flag.Int("users", 32, "Number of users")
	riskShards := flag.Int("risk-shards", 2, "Risk shard count")
	matchingShards := flag.Int("matching-shards", 4, "Matching shard count")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "Max timestamp delay")
	clean := flag.Bool("clean", true, "Remove the store directory before the run")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	if *storeKind != ops.StoreMemory {
		if *clean {
			if err := os.RemoveAll(*dir); err != nil {
				log.Fatalf("clean store dir failed: %v", err)
			}
		}
		if err := os.MkdirAll(*dir, 0o755); err != nil {
			log.Fatalf("create store dir failed: %v", err)
		}
	}
	storeCfg := ops.StoreConfig{Kind: *storeKind, Dir: *dir, NoSync: true, SQLitePath: filepath.Join(*dir, "chaos.db")}
	cfg := core.DefaultConfig()
	cfg.RiskShards = *riskShards
	cfg.MatchingShards = *matchingShards

	engine, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}
	gen, err := chaos.NewGenerator(chaos.GeneratorConfig{Seed: *seed, Users: *users})
	if err != nil {
		log.Fatalf("generator config invalid: %v", err)
	}

	if err := run(cfg, storeCfg, gen, engine, *commands); err != nil {
		log.Fatalf("chaos run failed (seed %d): %+v", *seed, err)
	}
	fmt.Printf("seed=%d commands=%d: recovered state matches\n", *seed, *commands)
}

// run submits the workload through the engine, persists a state half way
// and checks a recovery from it ends in the live state.
func run(cfg core.Config, storeCfg ops.StoreConfig, gen *chaos.Generator, engine *chaos.Engine, commands int) error {
	ctx := context.Background()
	processor, err := storeCfg.Open()
	if err != nil {
		return err
	}
	defer func() { _ = processor.Close() }()

	live, err := core.New(cfg, processor, nil)
	if err != nil {
		return err
	}
	if err := live.Start(ctx); err != nil {
		return err
	}
	for _, cmd := range gen.Setup() {
		if _, err := live.Submit(&cmd); err != nil {
			return err
		}
	}

	stateID := time.Now().UnixNano()
	for i := 0; i < commands; i++ {
		if i == commands/2 {
			if _, err := live.PersistState(stateID); err != nil {
				return err
			}
		}
		for _, cmd := range engine.Process(gen.Next()) {
			if _, err := live.Submit(&cmd); err != nil {
				return err
			}
		}
	}
	for _, cmd := range engine.Flush() {
		if _, err := live.Submit(&cmd); err != nil {
			return err
		}
	}
	if err := live.Shutdown(ctx); err != nil {
		return err
	}
	want, err := live.ShardStates()
	if err != nil {
		return err
	}

	cfg.LoadStateID = stateID
	recovered, err := core.New(cfg, processor, nil)
	if err != nil {
		return err
	}
	if err := recovered.Start(ctx); err != nil {
		return err
	}
	if recovered.Published() != live.Published() {
		return errors.Errorf("recovered seq %d, live seq %d", recovered.Published(), live.Published())
	}
	if err := recovered.Shutdown(ctx); err != nil {
		return err
	}
	got, err := recovered.ShardStates()
	if err != nil {
		return err
	}
	return compare(want, got)
}

func compare(want, got []journal.Snapshot) error {
	if len(want) != len(got) {
		return errors.Errorf("shard count mismatch: live=%d recovered=%d", len(want), len(got))
	}
	for i := range want {
		if err := state.CompareSnapshots(want[i], got[i]); err != nil {
			return err
		}
	}
	return nil
}
