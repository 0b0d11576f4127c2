package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"votex/config"
	"votex/core/events"
	"votex/exchange"
	"votex/ledger"
	"votex/observability"
	"votex/observability/logging"
	telemetry "votex/observability/otel"
	"votex/rpc"
	"votex/storage"
)

var genesisAppliedKey = []byte("votexd/genesis/applied")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VOTEX_ENV"))
	logger := logging.Setup("votexd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "votexd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid config: %v", err))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		panic(fmt.Sprintf("Failed to prepare data directory: %v", err))
	}
	store, err := storage.NewBolt(filepath.Join(cfg.DataDir, "votex.db"), nil)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer store.Close()

	module, err := cfg.Module()
	if err != nil {
		panic(fmt.Sprintf("Invalid module address: %v", err))
	}
	operators, err := cfg.OperatorAddresses()
	if err != nil {
		panic(fmt.Sprintf("Invalid operators: %v", err))
	}
	managers, err := cfg.ManagerAddresses()
	if err != nil {
		panic(fmt.Sprintf("Invalid managers: %v", err))
	}
	if len(operators) == 0 {
		panic("config must name at least one operator")
	}
	if len(managers) == 0 {
		panic("config must name at least one manager")
	}

	util := ledger.NewToken(store, "UTX")
	gov := ledger.NewGovernanceToken(store, "VPX")
	roles := ledger.NewRoles(store)

	engine := exchange.NewEngine()
	engine.SetLedgers(util, gov)
	engine.SetRoles(roles)
	engine.SetReplayGuard(exchange.NewReplayGuard(store))
	engine.SetCapPolicy(exchange.NewCapPolicy(store))
	engine.SetVerifier(exchange.NewRecoveryVerifier())
	engine.SetDomain(exchange.Domain{
		Name:    cfg.DomainName,
		Version: cfg.DomainVersion,
		ChainID: cfg.ChainID,
		Module:  module,
	})
	engine.SetEmitter(&telemetryEmitter{logger: logger})

	if err := bootstrap(cfg, store, util, roles, module, operators, managers, logger); err != nil {
		panic(fmt.Sprintf("Failed to bootstrap state: %v", err))
	}
	if cap, err := engine.Cap(); err == nil {
		observability.ExchangeMetrics().SetCap(cap)
	}

	authToken := strings.TrimSpace(os.Getenv(cfg.RPCTokenEnv))
	if authToken == "" {
		logger.Warn("RPC bearer token not set; privileged methods are disabled", "env", cfg.RPCTokenEnv)
	} else {
		logger.Info("RPC bearer auth configured", logging.MaskField("token", authToken))
	}
	server := rpc.NewServer(engine, util, operators[0], managers[0], authToken)

	rpcServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           otelhttp.NewHandler(server.Handler(), "rpc"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress)
		if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server failed", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful rpc shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful metrics shutdown failed", "error", err)
	}
}

// bootstrap grants the configured roles and, on first start, seeds operator
// balances and the module allowance from the genesis mint.
func bootstrap(cfg *config.Config, store bootstrapStore, util *ledger.Token, roles *ledger.Roles, module [20]byte, operators, managers [][20]byte, logger *slog.Logger) error {
	for _, operator := range operators {
		if err := roles.Grant(ledger.RoleExchanger, operator); err != nil {
			return err
		}
	}
	for _, manager := range managers {
		if err := roles.Grant(ledger.RoleManager, manager); err != nil {
			return err
		}
	}

	applied, err := store.KVHas(genesisAppliedKey)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	mint, err := cfg.GenesisMint()
	if err != nil {
		return err
	}
	if mint != nil && mint.Sign() > 0 {
		for _, operator := range operators {
			if err := util.Mint(operator, mint); err != nil {
				return err
			}
			if err := util.Approve(operator, module, mint); err != nil {
				return err
			}
		}
		logger.Info("seeded genesis utility balances", "operators", len(operators), "amount", mint.String())
	}
	return store.KVPut(genesisAppliedKey, true)
}

type bootstrapStore interface {
	KVHas(key []byte) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// telemetryEmitter logs engine events and feeds the event counter.
type telemetryEmitter struct {
	logger *slog.Logger
}

func (e *telemetryEmitter) Emit(evt events.Event) {
	observability.Events().RecordEvent(evt.EventType())
	recorder, ok := evt.(interface{ Record() *events.Record })
	if !ok {
		e.logger.Info("engine event", "type", evt.EventType())
		return
	}
	record := recorder.Record()
	attrs := make([]any, 0, 2+2*len(record.Attributes))
	attrs = append(attrs, "type", record.Type)
	for key, value := range record.Attributes {
		attrs = append(attrs, key, value)
	}
	e.logger.Info("engine event", attrs...)
}
