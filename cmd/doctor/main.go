// Package main is a standalone preflight check: it loads the configured
// environment, opens the broker and persistence layer, fetches a candle
// series, and runs one ranking pass, printing [OK]/[FAIL] lines as
// it goes. Exit code 2 on any failure so it composes with CI/operator
// tooling that only checks the return code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/config"
	"github.com/forgefx/paperbot/internal/features"
	"github.com/forgefx/paperbot/internal/persistence"
	"github.com/forgefx/paperbot/internal/ranking"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "path to configuration file")
	bars := fs.Int("bars", 300, "number of candles to request in the fetch sanity check")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("[FAIL] config: %v\n", err)
		return 2
	}
	fmt.Println("[OK] config loaded and validated")

	db, err := persistence.Open(cfg.Persistence.DBPath)
	if err != nil {
		fmt.Printf("[FAIL] persistence: %v\n", err)
		return 2
	}
	defer db.Close()
	fmt.Printf("[OK] persistence opened at %s\n", cfg.Persistence.DBPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	br := broker.NewDemo(doctorSymbols(), 10000, 1)

	account, err := br.Account(ctx)
	if err != nil {
		fmt.Printf("[FAIL] broker account: %v\n", err)
		return 2
	}
	fmt.Printf("[OK] account: login=%d server=%s mode=%s equity=%.2f\n",
		account.Login, account.Server, account.TradeMode, account.Equity)
	if account.TradeMode != broker.AccountModeDemo {
		fmt.Printf("[FAIL] account trade mode %q is not DEMO\n", account.TradeMode)
		return 2
	}

	preferred := cfg.Universe.PreferredSymbols
	candidate := ""
	if len(preferred) > 0 {
		candidate = preferred[0]
	} else if len(doctorSymbols()) > 0 {
		candidate = doctorSymbols()[0].Name
	}
	if candidate == "" {
		fmt.Println("[FAIL] no symbols available to sanity-check")
		return 2
	}

	candles, err := br.Candles(ctx, candidate, cfg.Runtime.Timeframe, *bars)
	if err != nil || len(candles) == 0 {
		fmt.Printf("[FAIL] candle fetch empty for %s: %v\n", candidate, err)
		return 2
	}
	fmt.Printf("[OK] candle fetch for %s: %d bars, last bar open=%s\n",
		candidate, len(candles), candles[len(candles)-1].OpenTime.Format(time.RFC3339))

	pipeline := features.NewPipeline(br)
	ranker := ranking.NewRanker(br, pipeline, cfg.RankingConfig(), nil)
	universe := []string{candidate}
	for _, s := range doctorSymbols() {
		if s.Name != candidate {
			universe = append(universe, s.Name)
		}
	}
	rankResult, err := ranker.Rank(ctx, universe)
	if err != nil {
		fmt.Printf("[FAIL] ranking pass: %v\n", err)
		return 2
	}
	fmt.Println("[OK] ranking pass")
	for i, r := range rankResult.Selected {
		fmt.Printf("  %d. %s score=%.3f reasons=%v\n", i+1, r.Symbol, r.Score, r.Reasons)
	}
	for symbol, reason := range rankResult.Excluded {
		fmt.Printf("  excluded %s: %s\n", symbol, reason)
	}

	return 0
}

// doctorSymbols is a two-symbol subset (EURUSD, XAUUSD) of the demo universe
// cmd/engine seeds the broker with, using the same metadata for both.
func doctorSymbols() []broker.SymbolMeta {
	return []broker.SymbolMeta{
		{
			Name: "EURUSD", AssetClass: broker.AssetClassForex, TradeAllowed: true,
			Point: 0.0001, Digits: 5, VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.0001, TradeContractSize: 100000,
		},
		{
			Name: "XAUUSD", AssetClass: broker.AssetClassMetals, TradeAllowed: true,
			Point: 0.01, Digits: 2, VolumeMin: 0.01, VolumeMax: 20, VolumeStep: 0.01,
			TradeTickValue: 1, TradeTickSize: 0.01, TradeContractSize: 100,
		},
	}
}
