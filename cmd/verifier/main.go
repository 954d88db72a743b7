package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/oklog/run"
	"go.uber.org/zap"

	"github.com/smartcontractkit/chainlink-common/pkg/beholder"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/chainaccess"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/confirmation"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/evidence"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/infoserver"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/keys"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/monitoring"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/packetstore"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/verifiedstate"
	"github.com/tangle-network/layerzero-dvn-template/verifier/security"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func loadConfiguration(filepath string) (*verifier.Config, error) {
	var config verifier.Config
	if _, err := toml.DecodeFile(filepath, &config); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func configPath() string {
	filePath := verifier.DefaultConfigFile
	if len(os.Args) > 1 {
		filePath = os.Args[1]
	}
	if envConfig := os.Getenv(verifier.ConfigPathEnvVar); envConfig != "" {
		filePath = envConfig
	}
	return filePath
}

func main() {
	lggr, err := logger.NewWith(func(config *zap.Config) {
		config.Development = true
		config.Encoding = "console"
	})
	if err != nil {
		panic(err)
	}
	lggr = logger.Sugared(lggr)

	if err := runNode(lggr); err != nil {
		lggr.Errorw("DVN stopped with error", "error", err)
		os.Exit(1)
	}
	lggr.Infow("DVN stopped gracefully")
}

func initMonitoring(cfg verifier.MonitoringConfig) (verifier.Monitoring, error) {
	if !cfg.Enabled || cfg.Type != "beholder" {
		return monitoring.NewNoopDVNMonitoring(), nil
	}
	return monitoring.InitMonitoring(beholder.Config{
		InsecureConnection:       cfg.Beholder.InsecureConnection,
		CACertFile:               cfg.Beholder.CACertFile,
		OtelExporterHTTPEndpoint: cfg.Beholder.OtelExporterHTTPEndpoint,
		OtelExporterGRPCEndpoint: cfg.Beholder.OtelExporterGRPCEndpoint,
		MetricReaderInterval:     time.Second * time.Duration(cfg.Beholder.MetricReaderInterval),
		TraceSampleRatio:         cfg.Beholder.TraceSampleRatio,
		TraceBatchTimeout:        time.Second * time.Duration(cfg.Beholder.TraceBatchTimeout),
	})
}

func runNode(lggr logger.Logger) error {
	cfg, err := loadConfiguration(configPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.PyroscopeURL != "" {
		profiler, err := monitoring.StartProfiling(cfg.PyroscopeURL)
		if err != nil {
			lggr.Errorw("Failed to start pyroscope", "error", err)
		} else {
			defer func() { _ = profiler.Stop() }()
		}
	}

	key, err := keys.Load(keys.Source{
		HexKey:       os.Getenv(verifier.PrivateKeyEnvVar),
		KeystoreFile: cfg.KeystoreFile,
		Password:     os.Getenv(verifier.KeystorePasswordEnvVar),
	})
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	identity, err := cfg.ResolveIdentity(keys.Address(key))
	if err != nil {
		return err
	}
	lggr.Infow("Using DVN identity", "address", identity.Hex())

	dvnMonitoring, err := initMonitoring(cfg.Monitoring)
	if err != nil {
		return fmt.Errorf("failed to initialize monitoring: %w", err)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	store, err := packetstore.New(startupCtx, cfg.PacketStore, dvnMonitoring.Metrics(), lggr)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			lggr.Errorw("Failed to close packet store", "error", err)
		}
	}()

	securityVerifier, err := security.NewSecurityVerifier(cfg.Security)
	if err != nil {
		return fmt.Errorf("failed to create security verifier: %w", err)
	}

	registry, err := chainaccess.DialRegistry(startupCtx, cfg.Chains, lggr)
	if err != nil {
		return err
	}
	defer registry.Close()

	var evidenceProvider protocol.EvidenceProvider
	if cfg.Evidence.URL != "" {
		evidenceProvider, err = evidence.NewHTTPClient(cfg.Evidence, dvnMonitoring.Metrics(), lggr)
		if err != nil {
			return fmt.Errorf("failed to create evidence client: %w", err)
		}
	} else {
		lggr.Warnw("No evidence URL configured, verifying with empty evidence")
	}

	pipeline, err := verifier.NewPipeline(*cfg, verifier.Dependencies{
		Store:    store,
		CallData: chainaccess.NewCallDataReader(registry),
		Confirmations: confirmation.NewGate(confirmation.NewEVMReader(registry), confirmation.Config{
			InitialDelay: cfg.ConfirmationDelay(),
			MaxAttempts:  cfg.ConfirmationMaxAttempts,
		}, lggr),
		VerifiedState: verifiedstate.NewCached(
			chainaccess.NewVerifiedStateReader(registry, identity),
			cfg.VerifiedCacheSize, cfg.VerifiedCacheTTLDuration(), lggr),
		Security:   securityVerifier,
		Submitter:  chainaccess.NewSubmitter(registry, key, lggr),
		Monitoring: dvnMonitoring,
		Logger:     lggr,
		Identity:   identity,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	sourceChains := registry.SourceChains()
	listenerChains := make([]verifier.ListenerChain, 0, len(sourceChains))
	for _, c := range sourceChains {
		listenerChains = append(listenerChains, verifier.ListenerChain{
			ID:            c.ID,
			StartBlock:    c.StartBlock,
			MaxBlockRange: c.MaxBlockRange,
		})
	}
	listener, err := verifier.NewListener(verifier.ListenerConfig{
		Chains:                 listenerChains,
		PollInterval:           cfg.PollIntervalDuration(),
		MaxConcurrentJobs:      cfg.MaxConcurrentJobs,
		MaxRequeueAttempts:     cfg.MaxRequeueAttempts,
		IsTemporaryEvidenceErr: evidence.IsTemporary,
	}, chainaccess.NewLogReader(registry), evidenceProvider, pipeline, dvnMonitoring.Metrics(), lggr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	info := infoserver.New(cfg.InfoServerAddress, infoserver.InfoResponse{
		VerifierID:  cfg.VerifierID,
		NodeAddress: identity.Hex(),
		Strategy:    string(securityVerifier.Kind()),
	}, pipeline.States(), lggr)

	lggr.Infow("Starting DVN",
		"verifierID", cfg.VerifierID,
		"strategy", securityVerifier.Kind(),
		"sourceChains", len(listenerChains),
		"requiredConfirmations", cfg.RequiredConfirmations,
	)

	g := &run.Group{}

	sigCtx, cancelSig := context.WithCancel(context.Background())
	g.Add(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			lggr.Infow("Shutdown signal received", "signal", sig.String())
			return nil
		case <-sigCtx.Done():
			return nil
		}
	}, func(error) {
		cancelSig()
	})

	listenerDone := make(chan struct{})
	g.Add(func() error {
		if err := listener.Start(sigCtx); err != nil {
			return fmt.Errorf("failed to start listener: %w", err)
		}
		info.SetPhase(infoserver.PhaseActive)
		<-listenerDone
		return nil
	}, func(error) {
		close(listenerDone)
		if err := listener.Close(); err != nil {
			lggr.Debugw("Listener close", "error", err)
		}
	})

	g.Add(func() error {
		if err := info.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("info server: %w", err)
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := info.Shutdown(ctx); err != nil {
			lggr.Errorw("Info server shutdown error", "error", err)
		}
	})

	return g.Run()
}
