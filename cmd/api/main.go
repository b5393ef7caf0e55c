package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"sentinel.org/internal/api"
	"sentinel.org/internal/auth"
	"sentinel.org/internal/config"
	"sentinel.org/internal/httpapi"
	"sentinel.org/internal/obs"
	"sentinel.org/internal/services"
	"sentinel.org/internal/store/pg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	dispatcher, err := buildDispatcher(cfg, store)
	if err != nil {
		log.Fatalf("wire api: %v", err)
	}
	probe := httpapi.ReadyProbe{DB: store.Tx()}

	var httpOpts []httpapi.Option
	httpOpts = append(httpOpts, httpapi.WithLimits(cfg.MaxBodyBytes, cfg.RateBurst, cfg.RatePerSecond))
	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("trusted proxies: %v", err)
	}
	httpOpts = append(httpOpts, httpapi.WithTrustedProxies(proxies))
	if cfg.CookiesEnabled() {
		signer, err := httpapi.NewCookieSigner(cfg.CookieSecret, cfg.CookieTTL, cfg.IsProduction())
		if err != nil {
			log.Fatalf("cookie signer: %v", err)
		}
		httpOpts = append(httpOpts, httpapi.WithCookieSigner(signer))
	}
	httpAPI := httpapi.New(dispatcher, probe, cfg.Version, httpOpts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpAPI.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(httpapi.UnaryLogging))
	rpc := httpapi.NewGRPCServer(dispatcher, probe)
	rpc.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchHealth(ctx, rpc, cfg.HealthInterval)

	go func() {
		obs.LogEvent("info", "grpc listening", map[string]any{"addr": cfg.GRPCAddr})
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	go func() {
		obs.LogEvent("info", "http listening", map[string]any{"addr": cfg.HTTPAddr, "version": cfg.Version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.LogEvent("info", "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	rpc.Shutdown()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	obs.LogEvent("info", "stopped", nil)
}

func buildDispatcher(cfg *config.Config, store *pg.Store) (*api.Dispatcher, error) {
	resolver, err := auth.NewResolver(store, auth.WithInvalidTokenDelay(cfg.InvalidTokenDelay))
	if err != nil {
		return nil, err
	}
	authz, err := auth.NewAuthorizer(store)
	if err != nil {
		return nil, err
	}
	svc, err := services.New(store, resolver, services.WithVersion(cfg.Version))
	if err != nil {
		return nil, err
	}
	reg, err := api.NewRegistry(api.DefaultRules())
	if err != nil {
		return nil, err
	}
	svc.Register(reg)
	return api.NewDispatcher(reg, resolver, authz, store.Tx())
}

func watchHealth(ctx context.Context, rpc *httpapi.GRPCServer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rpc.UpdateHealth(checkCtx); err != nil {
			obs.LogEvent("warn", "readiness check failed", map[string]any{"error": err.Error()})
		}
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
