package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pricequorum/internal/aggregate"
	"pricequorum/internal/config"
	"pricequorum/internal/httpx"
	"pricequorum/internal/logging"
	"pricequorum/internal/registry"
)

func main() {
	var (
		configPath string
		symbolsCSV string
		watch      bool
		interval   time.Duration
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config file (optional)")
	flag.StringVar(&symbolsCSV, "symbols", "BTC/USD,ETH/USD,XAU/USD", "comma-separated symbols")
	flag.BoolVar(&watch, "watch", false, "repeat every -interval until interrupted")
	flag.DurationVar(&interval, "interval", 15*time.Second, "cycle interval with -watch")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr so stdout stays machine readable.
	logger := logging.NewWithWriter(os.Stderr, cfg.Log.Level)

	agg, _, err := registry.NewAggregator(cfg, httpx.New(time.Duration(cfg.Server.RequestTimeoutSec)*time.Second), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "registry: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	symbols := splitCSV(symbolsCSV)
	failed := runCycle(ctx, agg, symbols, os.Stdout, os.Stderr)
	if !watch {
		if failed > 0 {
			os.Exit(2)
		}
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCycle(ctx, agg, symbols, os.Stdout, os.Stderr)
		}
	}
}

// runCycle prints one JSON line per resolved symbol to out and a notice per
// failure to errOut. It returns the number of failures.
func runCycle(ctx context.Context, agg *aggregate.Aggregator, symbols []string, out, errOut io.Writer) int {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	failed := 0
	for _, sym := range symbols {
		cp, err := agg.CanonicalPrice(ctx, sym)
		switch {
		case errors.Is(err, aggregate.ErrInsufficientSources):
			failed++
			fmt.Fprintf(errOut, "%s: no verified price available\n", sym)
		case err != nil:
			failed++
			fmt.Fprintf(errOut, "%s: %v\n", sym, err)
		default:
			_ = enc.Encode(cp)
		}
	}
	return failed
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
