package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"wellnessgo/internal/api"
	"wellnessgo/internal/config"
	"wellnessgo/internal/conversation"
	"wellnessgo/internal/healthmem"
	"wellnessgo/internal/logger"
	"wellnessgo/internal/metrics"
	"wellnessgo/internal/ratelimit"
	"wellnessgo/internal/service/ai"
	"wellnessgo/internal/worker"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.BasicConfig.ServerAddress = addr
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server_address")
	return cmd
}

func runServer(parent context.Context, cfg *config.Config) error {
	log := logger.New("wellnessgo")
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	limiter := ratelimit.New(ratelimit.WithLogger(log), ratelimit.WithSweepHook(m.SetRateLimiterEntries))
	limiter.Start(ctx, time.Duration(cfg.BasicConfig.SweepIntervalSecond)*time.Second)

	idle := time.Duration(cfg.BasicConfig.SessionIdleMinutes) * time.Minute
	conversations := conversation.NewRegistry(st.conversations, conversation.Options{
		MaxMessages:      cfg.Limits.MaxMessagesPerConversation,
		MaxContext:       cfg.Limits.MaxContextMessages,
		MaxConversations: cfg.Limits.MaxConversations,
	}, idle, log)
	memories := healthmem.NewRegistry(st.profiles, healthmem.DefaultPatterns(), idle, log)

	workers := worker.NewManager(time.Duration(cfg.BasicConfig.WorkerIdleSeconds)*time.Second, log)
	defer workers.Close()

	providers := ai.NewProviders(ctx, cfg, log)
	if len(providers) == 0 {
		log.Warn().Msg("no provider enabled, chat requests will return 503")
	}
	gateway := ai.NewGateway(providers, ai.Deps{
		Limiter:       limiter,
		Conversations: conversations,
		Memories:      memories,
		Workers:       workers,
		Metrics:       m,
		Logger:        log,
	}, ai.Options{
		ProviderTimeout: time.Duration(cfg.BasicConfig.ProviderTimeoutSeconds) * time.Second,
		ProviderQPS:     cfg.BasicConfig.ProviderQPS,
		MaxRequests:     cfg.RateLimit.MaxRequests,
		Window:          time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		MaxContext:      cfg.Limits.MaxContextMessages,
	})

	handlers := api.NewHandler(gateway, conversations, memories, api.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		DevMode:        cfg.BasicConfig.DevMode,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         log,
	})

	if !cfg.BasicConfig.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Strs("providers", gateway.Providers()).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
