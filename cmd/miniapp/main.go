package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/bridge"
	"github.com/alien-id/miniapp-sdk/internal/config"
	"github.com/alien-id/miniapp-sdk/internal/launch"
	"github.com/alien-id/miniapp-sdk/internal/logging"
	"github.com/alien-id/miniapp-sdk/internal/metrics"
	"github.com/alien-id/miniapp-sdk/internal/payment"
	"github.com/alien-id/miniapp-sdk/internal/store"
	"github.com/alien-id/miniapp-sdk/internal/transport"
	"github.com/alien-id/miniapp-sdk/internal/wallet"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON (JWCC) config file")
	message := flag.String("message", "hello from a miniapp", "message to sign with the host wallet")
	dev := flag.Bool("dev", false, "mock launch params when the host injected none")
	invoice := flag.String("pay-invoice", "", "request a test payment for this invoice")
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

	var st store.Store = store.NewMemoryStore()
	if cfg.Store.RedisAddr != "" {
		rs := store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.KeyPrefix)
		defer rs.Close()
		st = rs
	}

	globals := transport.ProcessGlobals{}
	source := launch.NewSource(globals, st, launch.WithLogger(log.With().Str("component", "launch").Logger()))
	params, err := source.Retrieve(ctx)
	if err != nil && *dev {
		mock := launch.Params{
			AuthToken:       cfg.Server.AuthToken,
			ContractVersion: cfg.Server.ContractVersion,
			Platform:        launch.Platform(cfg.Server.Platform),
		}
		if mock.AuthToken == "" {
			mock.AuthToken = "dev"
		}
		if err = source.MockForDev(mock); err == nil {
			params, err = source.Retrieve(ctx)
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("launch params unavailable")
	}
	log.Info().Str("contract_version", params.ContractVersion).Str("platform", string(params.Platform)).Msg("launched")

	env, err := transport.DialWebSocket(ctx, cfg.Bridge.HostURL, params.AuthToken, globals,
		transport.WithWebSocketLogger(log.With().Str("component", "ws").Logger()),
		transport.WithDialRetries(cfg.Bridge.DialRetries),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to host failed")
	}
	defer env.Close()

	b := bridge.New(env,
		bridge.WithLogger(log),
		bridge.WithMetrics(metrics.NoopRecorder{}),
		bridge.WithContractVersion(params.ContractVersion),
		bridge.WithTimeout(time.Duration(cfg.Bridge.TimeoutSeconds)*time.Second),
	)
	defer b.Close()
	b.OnClose(func() {
		log.Info().Msg("host asked to close")
		_ = b.CloseAck()
		stop()
	})
	if err := b.Ready(); err != nil {
		log.Fatal().Err(err).Msg("announce ready failed")
	}

	if err := run(ctx, b, log, *message, *invoice); err != nil {
		log.Fatal().Err(err).Msg("demo failed")
	}
}

func run(ctx context.Context, b *bridge.Bridge, log zerolog.Logger, message, invoice string) error {
	w := wallet.New(b, wallet.WithLogger(log.With().Str("component", "wallet").Logger()))
	accounts, err := w.Connect(ctx, wallet.ConnectInput{})
	if err != nil {
		return fmt.Errorf("connect wallet: %w", err)
	}
	acc := accounts[0]

	signed, err := w.SignMessage(ctx, wallet.SignMessageInput{Account: acc, Message: []byte(message)})
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}
	fmt.Printf("address:   %s\nsignature: %s\n", acc.Address, wallet.EncodeBase58(signed[0].Signature))

	if invoice != "" {
		res, err := payment.New(b, payment.WithLogger(log)).Pay(ctx, payment.Params{
			Recipient: acc.Address,
			Amount:    "1000",
			Token:     "SOL",
			Network:   "solana",
			Invoice:   invoice,
			Test:      payment.ScenarioPaid,
		})
		if err != nil {
			return fmt.Errorf("pay: %w", err)
		}
		fmt.Printf("payment:   %s %s\n", res.Status, res.TxHash)
	}
	return w.Disconnect()
}
