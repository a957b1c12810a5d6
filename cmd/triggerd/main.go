package main

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Aidin1998/triggerbook/internal/infrastructure/telemetry"
	"github.com/Aidin1998/triggerbook/internal/trading/config"
	"github.com/Aidin1998/triggerbook/internal/trading/custody"
	"github.com/Aidin1998/triggerbook/internal/trading/engine"
	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/lifecycle"
	"github.com/Aidin1998/triggerbook/internal/trading/model"
	"github.com/Aidin1998/triggerbook/internal/trading/settlement"
	"github.com/Aidin1998/triggerbook/internal/venue/simvenue"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

const (
	tickInterval    = 500 * time.Millisecond
	compactInterval = time.Minute
	retention       = 10 * time.Minute
)

type custodyLedger interface {
	settlement.Custody
	Balance(ctx context.Context, account uuid.UUID, asset string) (decimal.Decimal, error)
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	configPath := os.Getenv("TRIGGERBOOK_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(nil, configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Metrics:     cfg.Metrics.OTelExport,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		zapLogger.Fatal("Failed to set up telemetry", zap.Error(err))
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	ledger, closeLedger := newCustody(cfg.Custody, zapLogger)
	defer closeLedger()

	bus := events.NewInMemoryEventBus(zapLogger)
	bus.Subscribe(events.TopicOrder, func(ev events.Event) {
		zapLogger.Debug("Order event", zap.String("type", ev.Type), zap.String("pair", ev.Pair), zap.Stringer("event_id", ev.ID))
	})
	publisher := events.MultiPublisher{bus}
	var kafkaBus *events.KafkaEventBus
	if cfg.Events.Kafka.Enabled {
		kafkaBus = events.NewKafkaEventBus(cfg.Events.Kafka.KafkaConfig, zapLogger)
		publisher = append(publisher, kafkaBus)
		zapLogger.Info("Publishing order events to Kafka",
			zap.Strings("brokers", cfg.Events.Kafka.Brokers),
			zap.String("topic", cfg.Events.Kafka.Topic))
	}

	registry := engine.NewRegistry(ledger, publisher, zapLogger)
	venues := make(map[string]*simvenue.Venue, len(cfg.Pairs))
	for _, pc := range cfg.Pairs {
		v, err := simvenue.New(simvenue.Config{
			Pair:         pc.Symbol,
			InitialPrice: pc.Venue.InitialPrice,
			HaircutBps:   pc.Venue.HaircutBps,
			ImpactBps:    pc.Venue.ImpactBps,
		}, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create venue", zap.String("pair", pc.Symbol), zap.Error(err))
		}
		pe, err := registry.Register(pc, v)
		if err != nil {
			zapLogger.Fatal("Failed to register pair", zap.String("pair", pc.Symbol), zap.Error(err))
		}
		v.Subscribe(pe)
		venues[pc.Symbol] = v

		if err := seedOrders(ctx, registry, ledger, pc, zapLogger); err != nil {
			zapLogger.Fatal("Failed to seed orders", zap.String("pair", pc.Symbol), zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if metricsServer != nil {
		g.Go(func() error {
			zapLogger.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		run(gctx, registry, venues, cfg, zapLogger)
		return nil
	})
	if err := g.Wait(); err != nil {
		zapLogger.Error("Daemon stopped with error", zap.Error(err))
	}

	zapLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if kafkaBus != nil {
		if err := kafkaBus.Close(); err != nil {
			zapLogger.Error("Kafka publisher close failed", zap.Error(err))
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		zapLogger.Error("Telemetry shutdown failed", zap.Error(err))
	}
}

func newCustody(cfg config.CustodyConfig, log *zap.Logger) (custodyLedger, func()) {
	if cfg.Backend != config.CustodyRedis {
		return custody.NewLedger(log), func() {}
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		PoolSize: cfg.Redis.PoolSize,
	})
	log.Info("Using Redis custody ledger", zap.Strings("addrs", cfg.Redis.Addrs))
	return custody.NewRedisLedger(client, cfg.Redis.KeyPrefix, log), func() {
		if err := client.Close(); err != nil {
			log.Error("Redis close failed", zap.Error(err))
		}
	}
}

// seedOrders funds two demo accounts and rests a ladder of orders on both
// sides of the initial price.
func seedOrders(ctx context.Context, registry *engine.Registry, ledger custodyLedger, pc config.PairConfig, log *zap.Logger) error {
	seller, buyer := uuid.New(), uuid.New()
	if err := ledger.Credit(ctx, seller, pc.BaseAsset, decimal.NewFromInt(100)); err != nil {
		return err
	}
	if err := ledger.Credit(ctx, buyer, pc.QuoteAsset, pc.Venue.InitialPrice.Mul(decimal.NewFromInt(100))); err != nil {
		return err
	}

	for i := int64(1); i <= 4; i++ {
		offset := decimal.New(i, -2)
		sellAt := pc.Venue.InitialPrice.Mul(decimal.NewFromInt(1).Add(offset)).Round(2)
		buyAt := pc.Venue.InitialPrice.Mul(decimal.NewFromInt(1).Sub(offset)).Round(2)

		if _, err := registry.Create(ctx, pc.Symbol, lifecycle.CreateRequest{
			Owner:        seller,
			Direction:    model.ConvertAToB,
			AmountIn:     decimal.NewFromInt(1),
			TriggerPrice: sellAt,
		}); err != nil {
			return err
		}
		if _, err := registry.Create(ctx, pc.Symbol, lifecycle.CreateRequest{
			Owner:        buyer,
			Direction:    model.ConvertBToA,
			AmountIn:     buyAt,
			TriggerPrice: buyAt,
		}); err != nil {
			return err
		}
	}
	log.Info("Seeded demo orders", zap.String("pair", pc.Symbol), zap.Stringer("seller", seller), zap.Stringer("buyer", buyer))
	return nil
}

// run walks every venue's price along a slow oscillation until ctx is done.
func run(ctx context.Context, registry *engine.Registry, venues map[string]*simvenue.Venue, cfg *config.Config, log *zap.Logger) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	compact := time.NewTicker(compactInterval)
	defer compact.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-compact.C:
			for _, pair := range registry.Pairs() {
				if pe, err := registry.Engine(pair); err == nil {
					pe.Compact(time.Now().Add(-retention))
				}
			}
		case <-ticker.C:
			step++
			for _, pc := range cfg.Pairs {
				v := venues[pc.Symbol]
				prev := v.Price()
				next := pc.Venue.InitialPrice.Mul(decimal.NewFromFloat(1 + 0.05*math.Sin(float64(step)/10))).Round(2)
				dir := model.ConvertBToA
				if next.LessThan(prev) {
					dir = model.ConvertAToB
				}
				if err := v.Trade(ctx, dir, next); err != nil {
					log.Error("Trade rejected", zap.String("pair", pc.Symbol), zap.Stringer("price", next), zap.Error(err))
				}
			}
		}
	}
}
