// nostrcore drives the client layer from the command line: classify and
// publish content, talk to a connected wallet and query the feed cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nostr-core/internal/config"
	"nostr-core/internal/logging"
)

const usage = `usage: nostrcore [-env file] [-metrics-addr addr] <command> [flags]

commands:
  classify   show the sharing decision for a kind and tag set
  publish    build, sign and route an event
  wallet     info | balance | invoice | pay | lookup | transactions | zap | connect | disconnect | qr
  feed       run a cache query (feed, explore, thread, user_zaps)
  profile    fetch a profile with its stats from the cache
`

func main() {
	envFile := flag.String("env", ".env", "Environment file to load")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides METRICS_ADDR)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Debug("no env file loaded", "path", *envFile)
	}
	cfg := config.Load()
	logging.Init(os.Stderr, cfg.LogLevel)
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg)
	defer a.close()

	var err error
	switch args[0] {
	case "classify":
		err = a.runClassify(args[1:])
	case "publish":
		err = a.runPublish(ctx, args[1:])
	case "wallet":
		err = a.runWallet(ctx, args[1:])
	case "feed":
		err = a.runFeed(ctx, args[1:])
	case "profile":
		err = a.runProfile(ctx, args[1:])
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("command failed", "command", args[0], "error", err)
		a.close()
		os.Exit(1)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("metrics server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "error", err)
	}
}

// tagFlag collects repeated -tag name=value[,value...] flags.
type tagFlag [][]string

func (t *tagFlag) String() string {
	parts := make([]string, len(*t))
	for i, tag := range *t {
		parts[i] = tag[0] + "=" + strings.Join(tag[1:], ",")
	}
	return strings.Join(parts, " ")
}

func (t *tagFlag) Set(v string) error {
	name, values, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("tag must be name=value: %q", v)
	}
	*t = append(*t, append([]string{name}, strings.Split(values, ",")...))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
