package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/config"
	"github.com/Kjeonghyun5142/bap-pool/internal/logger"
	"github.com/Kjeonghyun5142/bap-pool/internal/messaging"
	"github.com/Kjeonghyun5142/bap-pool/internal/metrics"
	"github.com/Kjeonghyun5142/bap-pool/internal/postgres"
	"github.com/Kjeonghyun5142/bap-pool/internal/ratelimit"
	"github.com/Kjeonghyun5142/bap-pool/internal/security"
	"github.com/Kjeonghyun5142/bap-pool/internal/service"
	grpcx "github.com/Kjeonghyun5142/bap-pool/internal/transport/grpc"
	httpx "github.com/Kjeonghyun5142/bap-pool/internal/transport/http"
	"github.com/Kjeonghyun5142/bap-pool/internal/transport/ws"

	"github.com/redis/go-redis/v9"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		slog.String("env", cfg.Logging.Env), slog.String("version", cfg.Logging.Version))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- auth ---
	tokens, err := newTokens(cfg.Security.JWT)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	// --- postgres ---
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:               cfg.Postgres.DSN,
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
		ApplicationName:   cfg.Postgres.ApplicationName,
		StatementTimeout:  cfg.Postgres.StatementTimeout,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// --- repos & services ---
	userRepo := postgres.NewUserRepository(pool)
	roomRepo := postgres.NewRoomRepository(pool)
	chatRepo := postgres.NewChatRepository(pool)

	roomSvc := service.NewRoomService(roomRepo, userRepo)
	chatSvc := service.NewChatService(roomSvc, chatRepo)

	// --- optional infra ---
	hub := ws.NewHub()
	wsDeps := ws.Deps{Hub: hub, Tokens: tokens, Rooms: roomSvc, Chat: chatSvc, Profiles: userRepo}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := ratelimit.Ping(ctx, rdb); err != nil {
			slog.Warn("redis unreachable, limiter fails open until it recovers", slog.Any("err", err))
		}
		wsDeps.Limiter = ratelimit.NewLimiter(rdb, ratelimit.MessageRule(cfg.Redis.Limit, cfg.Redis.Window))
		slog.Info("rate limiter enabled", slog.Int64("limit", cfg.Redis.Limit), slog.Duration("window", cfg.Redis.Window))
	}

	if cfg.NATS.URL != "" {
		nc, err := messaging.NewNATSClient(messaging.DefaultNATSConfig(cfg.NATS.URL))
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer nc.Close()

		relay := messaging.NewRelay(nc, cfg.NATS.SubjectPrefix)
		if err := relay.Start(func(roomID int64, event []byte) {
			hub.BroadcastRaw(roomID, event)
		}); err != nil {
			log.Fatalf("nats relay: %v", err)
		}
		wsDeps.Relay = relay
		slog.Info("cross-instance relay enabled", slog.String("origin", relay.Origin()))
	}

	// --- WS ---
	wsServer := ws.NewServer(wsDeps, ws.Options{
		ReadLimit:    cfg.WS.ReadLimit,
		PongWait:     cfg.WS.PongWait,
		PingPeriod:   cfg.WS.PingPeriod,
		WriteWait:    cfg.WS.WriteWait,
		CheckOrigin:  cfg.WS.CheckOrigin,
		AllowOrigins: cfg.WS.AllowOrigins,
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:        httpx.NewHandler(roomSvc, chatSvc, wsServer),
		Tokens:         tokens,
		Users:          userRepo,
		WS:             wsServer.HandleWS,
		Metrics:        metrics.Handler(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC health ---
	var grpcSrv *grpcx.Server
	errCh := make(chan error, 2)

	if cfg.GRPC.Addr != "" {
		grpcSrv = grpcx.NewServer()
		go grpcSrv.Watch(ctx, pool, 15*time.Second)

		go func() {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				errCh <- err
				return
			}
			slog.Info("grpc listen", slog.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.GRPC().Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		slog.Info("http listen", slog.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", slog.String("sig", sig.String()))
	case err := <-errCh:
		slog.Error("server error", slog.Any("err", err))
	}
	stop()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.Shutdown()
	}
	_ = httpSrv.Shutdown(ctxShutdown)
	// hijacked websocket connections are not tracked by http.Server
	hub.CloseAll()
	slog.Info("stopped")
}

func newTokens(c config.JWT) (*security.Tokens, error) {
	opts := security.Options{
		Alg:       c.Alg,
		Secret:    []byte(c.Secret),
		Issuer:    c.Issuer,
		Audience:  c.Audience,
		ClockSkew: c.ClockSkew,
	}
	if c.PublicKeyPath != "" {
		pub, err := security.LoadRSAPublicKeyFromPEM(c.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		opts.Public = pub
	}
	return security.NewTokens(opts)
}
