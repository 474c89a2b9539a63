package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"zkpad/internal/config"
	"zkpad/internal/domain"
	"zkpad/internal/infra/ai"
	"zkpad/internal/infra/anchor"
	"zkpad/internal/infra/anchor/algorand"
	"zkpad/internal/infra/cachemem"
	cryptoinfra "zkpad/internal/infra/crypto"
	"zkpad/internal/infra/db"
	httpinfra "zkpad/internal/infra/http"
	"zkpad/internal/infra/lifecycle"
	"zkpad/internal/infra/policyopa"
	"zkpad/internal/infra/ratelimit"
	"zkpad/internal/infra/storemem"
	"zkpad/internal/infra/webhook"
	"zkpad/internal/usecase"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var listenAddr string
	fs.StringVar(&listenAddr, "listen", "", "listen address (overrides ZKPAD_LISTEN_ADDR)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.Load()
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	log := logrus.WithField("component", "zkpad")
	logrus.SetFormatter(&logrus.JSONFormatter{})

	signer, err := loadSigner(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load signing key: %v\n", err)
		return 2
	}
	verifier := signer
	if cfg.VerifierSeedHex != "" {
		verifier, err = cryptoinfra.NewSignerFromSeedHex(cfg.VerifierSeedHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load verifier key: %v\n", err)
			return 2
		}
	}
	log.WithField("signer_public_key", signer.PublicKeyHex()).Info("signing key loaded")

	var archive domain.ArchiveStore
	if cfg.PostgresDSN != "" {
		pg, err := db.Open(cfg.PostgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open archive database: %v\n", err)
			return 4
		}
		archive = pg
	}

	var store domain.StateStore
	if archive != nil {
		store = storemem.NewWithArchive(archive)
	} else {
		store = storemem.New()
	}

	var ledger domain.LedgerAdapter
	var lookup domain.LedgerLookup
	switch cfg.AnchorChain {
	case "":
	case "algorand":
		provider, err := algorand.New(cfg.AlgodAddress, cfg.AlgodToken, cfg.AnchorMnemonic)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configure algorand anchoring: %v\n", err)
			return 3
		}
		log.WithField("sender", provider.SenderAddress()).Info("algorand anchoring enabled")
		ledger = provider
		lookup = provider
	default:
		fmt.Fprintf(os.Stderr, "unsupported anchor chain %q\n", cfg.AnchorChain)
		return 1
	}

	interpreter := &usecase.InterpretControl{AITimeout: cfg.AITimeout}
	if cfg.AIEndpoint != "" {
		interpreter.AI = ai.NewClient(cfg.AIEndpoint, cfg.AIAPIKey)
		interpreter.Cache = cachemem.New()
		interpreter.CacheTTL = time.Hour
	}

	var admission usecase.AdmissionEngine
	if cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(context.Background(), cfg.PolicyBundlePath, "admission")
		if err != nil {
			fmt.Fprintf(os.Stderr, "load admission policy: %v\n", err)
			return 2
		}
		log.WithField("bundle_hash", engine.BundleHash()).Info("admission policy loaded")
		admission = engine
	}

	webhooks := webhook.NewDispatcher(cfg.WebhookWorkers, log.WithField("component", "webhook"))
	defer webhooks.Close()

	var dispatcher *anchor.Dispatcher
	if ledger != nil {
		dispatcher = anchor.NewDispatcher(ledger, log.WithField("component", "anchor"))
	}

	proof := usecase.NewBuildProof(nil)
	assembler := usecase.NewAssemblePackage(signer, nil)

	engine := lifecycle.NewEngine(store, proof, assembler, dispatcher, webhooks, log.WithField("component", "lifecycle"))
	engine.FastDemo = cfg.FastDemo
	engine.Start(cfg.Workers)
	defer engine.Close()

	create := &usecase.CreateAttestation{
		Store:       store,
		Interpreter: interpreter,
		Committer:   usecase.NewCommitEvidence(nil),
		Admission:   admission,
		Validity:    cfg.ValidityPeriod,
		Issuer:      "zkpad:" + signer.PublicKeyHex()[:16],
		Enqueue:     engine.Enqueue,
	}

	verify := &usecase.VerifyAttestation{
		Store:    store,
		Verifier: verifier,
		Backend:  usecase.CommitmentV1Backend{},
		Ledger:   lookup,
	}

	var limiter domain.RateLimiter
	if cfg.RateLimitRequests > 0 {
		if cfg.RedisAddr != "" {
			limiter, err = ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "configure redis rate limiter: %v\n", err)
				return 4
			}
		} else {
			limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
		}
	}

	server := &httpinfra.Server{
		Create:            create,
		Verify:            verify,
		Interpreter:       interpreter,
		Engine:            engine,
		Store:             store,
		Log:               log.WithField("component", "http"),
		RateLimiter:       limiter,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		DemoMode:          cfg.DemoMode,
	}

	log.WithField("addr", cfg.ListenAddr).Info("zkpad listening")
	if err := server.Router().Run(cfg.ListenAddr); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 4
	}
	return 0
}

func loadSigner(cfg config.Config) (*cryptoinfra.Signer, error) {
	switch {
	case cfg.SigningSeedHex != "":
		return cryptoinfra.NewSignerFromSeedHex(cfg.SigningSeedHex)
	case cfg.SigningMnemonic != "":
		return cryptoinfra.NewSignerFromMnemonic(cfg.SigningMnemonic)
	default:
		return cryptoinfra.NewSigner()
	}
}
