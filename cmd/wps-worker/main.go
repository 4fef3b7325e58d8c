package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/biclient"
	"github.com/lzjever/mbos-wps/internal/drive"
	"github.com/lzjever/mbos-wps/internal/identity"
	"github.com/lzjever/mbos-wps/internal/observability"
	"github.com/lzjever/mbos-wps/internal/provision"
	"github.com/lzjever/mbos-wps/internal/rest"
	"github.com/lzjever/mbos-wps/internal/store"
	"github.com/lzjever/mbos-wps/internal/worker"
)

func main() {
	var cfg worker.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	tpl, err := provision.LoadTemplate(cfg.TemplatePath)
	if err != nil {
		log.Fatal("template load failed", zap.Error(err))
	}

	biTokens := identity.NewProvider(
		identity.Credentials{ClientID: cfg.BIClientID, ClientSecret: cfg.BIClientSecret},
		identity.Audience{
			Name:      "bi",
			Authority: cfg.BIAuthority,
			Tenant:    cfg.BITenant,
			Resource:  cfg.BIResource,
			Scopes:    cfg.BIScopes,
		},
		log,
	)
	bi := biclient.New(rest.New(cfg.BIBaseURL, biTokens, log))
	engine := provision.NewEngine(bi, provision.Options{NamePrefix: cfg.NamePrefix}, log)

	// The drive platform is optional; without it, requests carrying a
	// folder path fail at dispatch.
	var driveClient *drive.Client
	if cfg.DriveBaseURL != "" {
		driveTokens := identity.NewProvider(
			identity.Credentials{ClientID: cfg.DriveClientID, ClientSecret: cfg.DriveClientSecret},
			identity.Audience{
				Name:      "drive",
				Authority: cfg.DriveAuthority,
				Tenant:    cfg.DriveTenant,
				Resource:  cfg.DriveResource,
				Scopes:    cfg.DriveScopes,
			},
			log,
		)
		driveClient = drive.New(rest.New(cfg.DriveBaseURL, driveTokens, log), log)
	}

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	w := worker.New(pool, engine, driveClient, *tpl, cfg, log)
	w.Run(ctx)
}
