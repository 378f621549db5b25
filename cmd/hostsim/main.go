package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/config"
	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/host"
	"github.com/alien-id/miniapp-sdk/internal/logging"
	"github.com/alien-id/miniapp-sdk/internal/metrics"
	"github.com/alien-id/miniapp-sdk/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON (JWCC) config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config failed")
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("init logger failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.Store.RedisAddr != "" {
		rs := store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.KeyPrefix)
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Store.RedisAddr).Msg("redis unreachable")
		}
		st = rs
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("use redis store")
	} else {
		st = store.NewMemoryStore()
		log.Info().Msg("use memory store")
	}

	rec, err := metrics.NewPrometheusRecorder(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("register metrics failed")
	}

	hub := host.NewHub(st,
		host.WithLogger(log.With().Str("component", "hub").Logger()),
		host.WithMetrics(rec),
		host.WithAuthToken(cfg.Server.AuthToken),
		host.WithReplayTTL(time.Duration(cfg.Server.ReplayTTLSeconds)*time.Second),
	)
	host.NewDevice(log.With().Str("component", "device").Logger()).Register(hub)

	wallet, err := host.NewWallet(cfg.Wallet.PrivateKey,
		host.WithWalletLogger(log.With().Str("component", "wallet").Logger()),
		host.WithRPC(cfg.Wallet.RPCURL),
		host.WithAutoReject(cfg.Wallet.AutoReject),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("init wallet failed")
	}
	wallet.Register(hub)

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.MiniappPath, hub.HandleMiniapp)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		if err := hub.Broadcast(contract.EventClose, contract.Empty{}); err != nil {
			log.Warn().Err(err).Msg("announce close failed")
		}
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.Server.ListenAddr).
		Str("path", cfg.Server.MiniappPath).
		Str("contract_version", cfg.Server.ContractVersion).
		Str("wallet", wallet.PublicKey().String()).
		Msg("host simulator listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("host simulator failed")
	}
}
