// Command provenance-server runs the provenance backend: content-addressed
// document storage, per-document key management, custody chains, anchoring,
// and the verification API.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/optichain/provenance-backend/anchor"
	"github.com/optichain/provenance-backend/cas"
	pbcommon "github.com/optichain/provenance-backend/common"
	"github.com/optichain/provenance-backend/httpserver"
	"github.com/optichain/provenance-backend/interfaces"
	"github.com/optichain/provenance-backend/keyvault"
	"github.com/optichain/provenance-backend/ledger"
	"github.com/optichain/provenance-backend/metrics"
	"github.com/optichain/provenance-backend/trace"
	"github.com/optichain/provenance-backend/verifier"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringSliceFlag{
		Name:  "storage",
		Value: cli.NewStringSlice("memory://"),
		Usage: "blob backend URIs (memory://, file://, ipfs://, s3://, vault://); repeat for redundancy",
	},
	&cli.StringFlag{
		Name:     "master-secret",
		Usage:    "hex-encoded vault master secret (required)",
		EnvVars:  []string{"PROVENANCE_MASTER_SECRET"},
		Required: true,
	},
	&cli.StringFlag{
		Name:  "stage-policy",
		Value: "reject",
		Usage: "stage-order policy: 'reject' or 'warn'",
	},
	&cli.StringSliceFlag{
		Name:  "catalog-products",
		Usage: "known product ids; when empty every product id is accepted",
	},
	&cli.StringFlag{
		Name:  "rpc-addr",
		Value: "",
		Usage: "Ethereum RPC address for anchor publication; empty disables ledger submission",
	},
	&cli.StringFlag{
		Name:    "ledger-key",
		Value:   "",
		Usage:   "hex-encoded private key funding anchor transactions",
		EnvVars: []string{"PROVENANCE_LEDGER_KEY"},
	},
	&cli.StringFlag{
		Name:  "anchor-to",
		Value: "",
		Usage: "address anchor transactions are sent to",
	},
	&cli.DurationFlag{
		Name:  "anchor-interval",
		Value: 0,
		Usage: "periodic anchor publication interval; 0 disables the background loop",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: pbcommon.PackageName,
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

// disabledLedger stands in when no RPC endpoint is configured: digests stay
// Pending locally instead of getting fabricated confirmations.
type disabledLedger struct{}

func (disabledLedger) Submit(ctx context.Context, digest []byte) (string, error) {
	return "", fmt.Errorf("%w: no ledger configured", interfaces.ErrLedgerUnavailable)
}

func main() {
	app := &cli.App{
		Name:  "provenance-server",
		Usage: "Serve the supply-chain provenance and document store API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			metricsAddr := cCtx.String("metrics-addr")
			storageURIs := cCtx.StringSlice("storage")
			masterSecretHex := cCtx.String("master-secret")
			stagePolicy := cCtx.String("stage-policy")
			catalogProducts := cCtx.StringSlice("catalog-products")
			rpcAddress := cCtx.String("rpc-addr")
			ledgerKey := cCtx.String("ledger-key")
			anchorTo := cCtx.String("anchor-to")
			anchorInterval := cCtx.Duration("anchor-interval")
			logJSON := cCtx.Bool("log-json")
			logDebug := cCtx.Bool("log-debug")
			logUID := cCtx.Bool("log-uid")
			logService := cCtx.String("log-service")
			enablePprof := cCtx.Bool("pprof")
			drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

			logger := pbcommon.SetupLogger(&pbcommon.LoggingOpts{
				Debug:   logDebug,
				JSON:    logJSON,
				Service: logService,
				Version: pbcommon.Version,
			})

			if logUID {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			masterSecret, err := hex.DecodeString(masterSecretHex)
			if err != nil || len(masterSecret) < 16 {
				logger.Error("Invalid master-secret - must be at least 32 hex chars", "err", err)
				return errors.New("invalid master-secret")
			}

			var policy trace.StagePolicy
			switch stagePolicy {
			case "reject":
				policy = trace.StagePolicyReject
			case "warn":
				policy = trace.StagePolicyWarnOnly
			default:
				return fmt.Errorf("invalid stage-policy: %s", stagePolicy)
			}

			// Blob backends
			locations := make([]interfaces.BackendLocation, 0, len(storageURIs))
			for _, uri := range storageURIs {
				loc, err := interfaces.NewBackendLocation(uri)
				if err != nil {
					logger.Error("Invalid storage URI", "uri", uri, "err", err)
					return err
				}
				locations = append(locations, loc)
			}

			factory := cas.NewFactory(logger)
			backend, err := factory.CreateMultiBackend(locations)
			if err != nil {
				logger.Error("Failed to create blob backends", "err", err)
				return err
			}
			logger.Info("Blob storage ready", "location", backend.LocationURI())

			// Collaborators. The fronting gateway authenticates callers; the
			// core only requires an asserted principal.
			authorizer := interfaces.AuthorizerFunc(func(ctx context.Context, principal, action, resourceID string) bool {
				return principal != ""
			})

			var catalog interfaces.Catalog
			if len(catalogProducts) > 0 {
				known := slices.Clone(catalogProducts)
				catalog = interfaces.CatalogFunc(func(ctx context.Context, productID string) (bool, error) {
					return slices.Contains(known, productID), nil
				})
			}

			// Ledger
			var ledgerClient interfaces.Ledger = disabledLedger{}
			if rpcAddress != "" {
				if ledgerKey == "" || anchorTo == "" {
					return errors.New("rpc-addr requires ledger-key and anchor-to")
				}
				ethLedger, err := ledger.NewEthereumLedger(cCtx.Context, rpcAddress, ledgerKey,
					common.HexToAddress(anchorTo), logger)
				if err != nil {
					logger.Error("Failed to connect to ledger RPC", "err", err)
					return err
				}
				defer ethLedger.Close()
				ledgerClient = ethLedger
				logger.Info("Ledger anchoring enabled", "rpc", rpcAddress, "anchorTo", anchorTo)
			} else {
				logger.Warn("No ledger configured, anchor digests will stay pending")
			}

			// Core components
			store := cas.NewStore(backend, authorizer, logger)
			vault := keyvault.NewVault(keyvault.NewMemoryStore(), authorizer, masterSecret, logger)
			chains := trace.NewManager(trace.NewMemoryEventStore(), catalog, policy, logger)
			anchors := anchor.NewPublisher(chains, ledgerClient, logger)

			// Active keys and cited certificates block blob deletion.
			store.AddReferenceOracle(vault)
			store.AddReferenceOracle(chains)

			handler := httpserver.NewHandler(store, vault, chains, anchors,
				verifier.New(store, vault, chains, anchors, logger), metrics.New(), logger)

			server, err := httpserver.New(&httpserver.HTTPServerConfig{
				ListenAddr:               listenAddr,
				MetricsAddr:              metricsAddr,
				Log:                      logger,
				EnablePprof:              enablePprof,
				DrainDuration:            drainDuration,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			anchorCtx, cancelAnchors := context.WithCancel(context.Background())
			defer cancelAnchors()
			if anchorInterval > 0 {
				go anchors.Run(anchorCtx, anchorInterval)
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			cancelAnchors()
			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
