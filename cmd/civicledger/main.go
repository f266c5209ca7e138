package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"civicledger/api/server"
	"civicledger/core/approval"
	"civicledger/core/audit"
	"civicledger/core/auth"
	"civicledger/core/config"
	"civicledger/core/document"
	"civicledger/core/events"
	"civicledger/core/genesis"
	"civicledger/core/ledger"
	"civicledger/core/logger"
	"civicledger/core/notify"
	"civicledger/core/storage"
	"civicledger/core/verification"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment is parsed")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("node stopped", zap.Error(err))
	}
	log.Info("node stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting CivicLedger node", zap.String("channel", cfg.Channel), zap.String("env", cfg.Env))

	dek, err := cfg.DataKey()
	if err != nil {
		return err
	}
	if dek == nil {
		log.Warn("at-rest encryption disabled, set CIVIC_LEDGER_DEK to enable it")
	}
	store, err := storage.NewStorage(cfg.DBPath, dek)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	auditLog := audit.NewZapAuditLogger(log)
	node, err := ledger.NewNode(cfg.Channel, store,
		ledger.WithLogger(log),
		ledger.WithAuditLogger(auditLog),
		ledger.WithEventHub(events.NewHub(cfg.EventBuffer)),
	)
	if err != nil {
		return err
	}
	contracts := []ledger.Contract{
		document.NewContract(),
		approval.NewContract(),
		verification.NewContract(verification.WithDefaultLocale(cfg.Locale)),
	}
	for _, c := range contracts {
		if err := node.Register(c); err != nil {
			return err
		}
	}

	gen, err := genesis.Load(cfg.GenesisFile)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("genesis file not found, using defaults", zap.String("path", cfg.GenesisFile))
		gen = genesis.Default(cfg.Channel)
	} else if err != nil {
		return err
	}
	created, err := genesis.Applier{Log: log, Audit: auditLog}.Apply(ctx, node, gen)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if !created {
		if err := node.Journal().Verify(); err != nil {
			return fmt.Errorf("verify chain: %w", err)
		}
	}
	log.Info("ledger ready", zap.Uint64("height", node.Journal().Height()), zap.Strings("contracts", node.Contracts()))

	notifier := &notify.Notifier{Hub: node.Events(), Sink: notify.LogSink{Log: log.Named("notify")}, Log: log}
	go notifier.Run(ctx)

	authorizer := &auth.Authorizer{
		Verifier:    auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer),
		AuditLogger: auditLog,
	}
	opts := []server.Option{
		server.WithLogger(log),
		server.WithShutdownGrace(cfg.ShutdownGrace),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, server.WithRateLimiter(server.NewRateLimiter(cfg.RateLimit)))
	}
	if cfg.EnableHTTPS {
		opts = append(opts, server.WithTLS(server.TLSConfig{CertPath: cfg.TLSCertPath, KeyPath: cfg.TLSKeyPath}))
	}
	return server.NewServer(node, authorizer, cfg.ListenAddr, opts...).Start(ctx)
}
