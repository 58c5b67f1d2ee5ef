package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdpcore/config"
	"cdpcore/native/cdp"
	"cdpcore/observability/logging"
	"cdpcore/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	manifestFile := flag.String("manifest", "", "Path to a YAML basket bootstrap manifest (optional)")
	metricsAddr := flag.String("metrics-addr", ":9464", "Listen address for the Prometheus /metrics endpoint")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CDPCORE_ENV"))
	logger := logging.Setup("cdpcored", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("data_dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store := cdp.NewKVStore(db)
	if err := store.PutConfig(cfg); err != nil {
		logger.Error("failed to persist config", slog.Any("error", err))
		os.Exit(1)
	}

	engine := cdp.NewEngine(store, cfg)
	engine.SetLogger(logger)

	if *manifestFile != "" {
		manifest, err := cdp.LoadBasketManifest(*manifestFile)
		if err != nil {
			logger.Error("failed to load basket manifest", slog.String("path", *manifestFile), slog.Any("error", err))
			os.Exit(1)
		}
		if err := manifest.Apply(engine, 0); err != nil {
			logger.Error("failed to apply basket manifest", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("applied basket manifest", slog.Int("baskets", len(manifest.Baskets)))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("cdpcored started", slog.String("metrics_addr", *metricsAddr), slog.String("data_dir", cfg.DataDir))
	if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
		logger.Error("metrics server exited", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "cdpcored exiting")
}
