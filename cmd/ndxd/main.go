// Command ndxd runs a single-process governance ledger node.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ndxgov/cmd/internal/passphrase"
	"ndxgov/config"
	"ndxgov/crypto"
	"ndxgov/observability/logging"
	"ndxgov/observability/otel"
)

const shutdownTimeout = 10 * time.Second

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NDX_ENV"))
	logger := logging.Setup("ndxd", env)

	passSource := passphrase.NewSource(passphrase.DefaultEnvVar)
	pass, err := passSource.Get()
	if err != nil {
		logger.Error("Failed to resolve keystore passphrase", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.Load(*configFile, config.WithKeystorePassphrase(pass))
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if g := strings.TrimSpace(*genesisFlag); g != "" {
		cfg.GenesisFile = g
	}
	logger = logging.SetupWithFile("ndxd", env, logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Level:      cfg.Log.Level,
	})

	if err := run(cfg, pass, env, logger); err != nil {
		logger.Error("ndxd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, pass, env string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, pass)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "ndxd",
		Version:     version,
		Environment: env,
		ChainID:     cfg.ChainID,
		Operator:    key.Address().String(),
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("operator key loaded",
		slog.String("address", key.Address().String()),
		slog.String("keystore", cfg.OperatorKeystorePath))

	n, err := openNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- n.rpc.Serve(listener) }()

	blocks := newProducer(n.chain, time.Duration(cfg.BlockIntervalSeconds)*time.Second, logger)
	blocks.Start(ctx)
	logger.Info("node started",
		slog.Uint64("chainId", cfg.ChainID),
		slog.String("rpc", listener.Addr().String()),
		slog.Uint64("blockInterval", cfg.BlockIntervalSeconds),
		logging.MaskField("jwtSecret", cfg.RPC.JWTSecret))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		stop()
	}
	blocks.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := n.rpc.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("rpc shutdown", slog.Any("error", shutdownErr))
	}
	if _, sealErr := n.chain.SealBlock(uint64(time.Now().Unix())); sealErr != nil {
		logger.Warn("final seal", slog.Any("error", sealErr))
	}
	return err
}
