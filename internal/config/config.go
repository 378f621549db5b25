package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/tailscale/hujson"
)

type Config struct {
	Server ServerConfig `json:"server"`
	Store  StoreConfig  `json:"store"`
	Wallet WalletConfig `json:"wallet"`
	Bridge BridgeConfig `json:"bridge"`
	Log    LogConfig    `json:"log"`
}

// ServerConfig drives the development host simulator.
type ServerConfig struct {
	ListenAddr       string `json:"listen_addr"        env:"MINIAPP_HOST_LISTEN_ADDR"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	MiniappPath      string `json:"miniapp_path"       env:"MINIAPP_HOST_PATH"`
	AuthToken        string `json:"auth_token"         env:"MINIAPP_HOST_AUTH_TOKEN"`
	ContractVersion  string `json:"contract_version"   env:"MINIAPP_HOST_CONTRACT_VERSION" validate:"required"`
	Platform         string `json:"platform"           env:"MINIAPP_HOST_PLATFORM"         validate:"omitempty,oneof=ios android"`
	ReplayTTLSeconds int    `json:"replay_ttl_seconds" env:"MINIAPP_HOST_REPLAY_TTL"       validate:"min=1"`
}

type StoreConfig struct {
	RedisAddr string `json:"redis_addr" env:"REDIS_ADDR"`
	KeyPrefix string `json:"key_prefix" env:"MINIAPP_STORE_PREFIX"`
}

// WalletConfig configures the simulated wallet. PrivateKey is base58; an
// empty key means a fresh one per process.
type WalletConfig struct {
	PrivateKey string `json:"private_key" env:"MINIAPP_WALLET_PRIVATE_KEY"`
	RPCURL     string `json:"rpc_url"     env:"MINIAPP_WALLET_RPC_URL"     validate:"omitempty,url"`
	AutoReject bool   `json:"auto_reject" env:"MINIAPP_WALLET_AUTO_REJECT"`
}

// BridgeConfig is read by miniapp-side binaries.
type BridgeConfig struct {
	HostURL        string `json:"host_url"        env:"MINIAPP_BRIDGE_URL"     validate:"omitempty,url"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"MINIAPP_BRIDGE_TIMEOUT" validate:"min=1"`
	DialRetries    uint   `json:"dial_retries"    env:"MINIAPP_BRIDGE_DIAL_RETRIES"`
}

type LogConfig struct {
	Level  string `json:"level"  env:"MINIAPP_LOG_LEVEL"  validate:"omitempty,oneof=trace debug info warn error"`
	Pretty bool   `json:"pretty" env:"MINIAPP_LOG_PRETTY"`
}

var validate = validator.New()

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:       ":8080",
			MiniappPath:      "/ws/miniapp",
			ContractVersion:  "1.1.0",
			ReplayTTLSeconds: 600,
		},
		Store: StoreConfig{
			KeyPrefix: "miniapp:",
		},
		Bridge: BridgeConfig{
			HostURL:        "ws://localhost:8080/ws/miniapp",
			TimeoutSeconds: 30,
			DialRetries:    3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load starts from Default, overlays the file at path when given, then the
// environment. Files may carry comments and trailing commas.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config failed: %w", err)
		}
		content, err = hujson.Standardize(content)
		if err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Server.MiniappPath == "" {
		cfg.Server.MiniappPath = "/ws/miniapp"
	}
	if cfg.Server.ListenAddr == "" {
		if cfg.Server.Host != "" && cfg.Server.Port > 0 {
			cfg.Server.ListenAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		} else {
			cfg.Server.ListenAddr = ":8080"
		}
	}
	if cfg.Server.ReplayTTLSeconds <= 0 {
		cfg.Server.ReplayTTLSeconds = 600
	}
	if cfg.Bridge.TimeoutSeconds <= 0 {
		cfg.Bridge.TimeoutSeconds = 30
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
