package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tidechain/config"
	"tidechain/core"
	"tidechain/crypto"
	"tidechain/native/bridge"
	"tidechain/native/vault"
	"tidechain/observability"
	"tidechain/observability/logging"
	"tidechain/rpc"
	"tidechain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("tidechaind", cfg.Env)

	operator, err := requiredAddress(cfg.OperatorAddress, "OperatorAddress")
	if err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	vaultModule, err := requiredAddress(cfg.VaultModuleAddress, "VaultModuleAddress")
	if err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	feeRecipient, err := requiredAddress(cfg.FeeRecipient, "FeeRecipient")
	if err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	bridgeFeeRecipient, err := requiredAddress(cfg.BridgeFeeRecipient, "BridgeFeeRecipient")
	if err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	params, err := vaultParams(cfg.Vault, feeRecipient)
	if err != nil {
		logger.Error("Invalid vault configuration", slog.Any("error", err))
		os.Exit(1)
	}

	bridgeKey, err := loadBridgeKey(cfg, logger)
	if err != nil {
		logger.Error("Failed to load bridge signing key", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("bridge endpoint identity", "address", bridgeKey.PubKey().Address().String())

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.Config{
		Operator:           operator,
		VaultModule:        vaultModule,
		VaultParams:        params,
		BridgeKey:          bridgeKey,
		BridgeFeeRecipient: bridgeFeeRecipient,
		Fabric:             bridge.NewQueueFabric(big.NewInt(0)),
		Emitter:            observability.NewMetricsEmitter(nil),
	})
	if err != nil {
		logger.Error("Failed to initialize node", slog.Any("error", err))
		os.Exit(1)
	}
	defer node.Close()

	server := rpc.NewServer(node, cfg.RPCAuthToken, logger)
	mux := http.NewServeMux()
	mux.Handle("/", server.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func requiredAddress(value, field string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseWei(value, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative decimal string", field)
	}
	return amount, nil
}

func vaultParams(cfg config.VaultConfig, feeRecipient crypto.Address) (vault.Params, error) {
	tierSize, err := parseWei(cfg.TierSize, "Vault.TierSize")
	if err != nil {
		return vault.Params{}, err
	}
	minDeposit, err := parseWei(cfg.MinDeposit, "Vault.MinDeposit")
	if err != nil {
		return vault.Params{}, err
	}
	perAddressCap, err := parseWei(cfg.PerAddressCap, "Vault.PerAddressCap")
	if err != nil {
		return vault.Params{}, err
	}
	globalCap, err := parseWei(cfg.GlobalCap, "Vault.GlobalCap")
	if err != nil {
		return vault.Params{}, err
	}
	params := vault.Params{
		BaseRateBps:          cfg.BaseRateBps,
		TierDecrementBps:     cfg.TierDecrementBps,
		MinimumRateBps:       cfg.MinimumRateBps,
		TierSize:             tierSize,
		AccrualPeriodSeconds: cfg.AccrualPeriodSeconds,
		MaxDailyAccrualBps:   cfg.MaxDailyAccrualBps,
		ProtocolFeeBps:       cfg.ProtocolFeeBps,
		FeeRecipient:         feeRecipient,
		MinDeposit:           minDeposit,
		PerAddressCap:        perAddressCap,
		GlobalCap:            globalCap,
		RequireAllowList:     cfg.RequireAllowList,
	}
	return params, params.Validate()
}

// loadBridgeKey opens the configured keystore, generating and persisting a
// fresh key on first boot.
func loadBridgeKey(cfg *config.Config, logger *slog.Logger) (*crypto.PrivateKey, error) {
	passphrase := os.Getenv(cfg.BridgeKeystorePassphraseEnv)
	if strings.TrimSpace(passphrase) == "" {
		return nil, fmt.Errorf("passphrase environment variable %s is not set", cfg.BridgeKeystorePassphraseEnv)
	}
	if _, err := os.Stat(cfg.BridgeKeystorePath); err == nil {
		return crypto.LoadFromKeystore(cfg.BridgeKeystorePath, passphrase)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(cfg.BridgeKeystorePath, key, passphrase); err != nil {
		return nil, err
	}
	logger.Info("generated new bridge signing key", "path", cfg.BridgeKeystorePath)
	return key, nil
}
