// admissiond serves the admission engine over HTTP: guarded traffic passes
// through the admission middleware and the introspection API exposes
// statistics and hotspot rankings.
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

	"github.com/gin-gonic/gin"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theo-thinker/music-server-admission/admission"
	"github.com/theo-thinker/music-server-admission/api"
	"github.com/theo-thinker/music-server-admission/config"
	"github.com/theo-thinker/music-server-admission/logger"
	"github.com/theo-thinker/music-server-admission/middleware"
	redisman "github.com/theo-thinker/music-server-admission/redis"
)

var (
	configPath string
	envPrefix  string
)

func main() {
	root := &cobra.Command{
		Use:   "admissiond",
		Short: "Policy driven request admission service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/admissiond.yaml", "configuration file path")
	root.PersistentFlags().StringVar(&envPrefix, "env-prefix", "ADMISSION", "environment variable prefix")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the admission HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe() error {
	loader := config.NewLoader(configPath, envPrefix)
	if err := loader.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.DefaultManagerConfig()
	if loader.IsSet("logger") {
		if err := loader.Unmarshal("logger", &logCfg); err != nil {
			return fmt.Errorf("logger config: %w", err)
		}
	}
	logger.InitManager(logCfg)
	defer logger.CloseAll()

	log := logger.GetLogger("admissiond")

	injector := do.New()
	defer func() { _ = injector.Shutdown() }()

	do.ProvideValue(injector, loader)

	if loader.IsSet("redis.instances") {
		do.Provide(injector, func(i do.Injector) (*redisman.Manager, error) {
			var configs map[string]redisman.Config
			if err := loader.Unmarshal("redis.instances", &configs); err != nil {
				return nil, err
			}
			return redisman.NewManager(configs, logger.GetLogger("redis"))
		})
	}

	do.Provide(injector, admission.Provider)

	engine, err := do.Invoke[*admission.Engine](injector)
	if err != nil {
		return fmt.Errorf("admission engine: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceID(middleware.DefaultTraceConfig()))

	// Guard all traffic when an HTTP policy is configured.
	if policy := loader.GetString("server.policy"); policy != "" {
		cfg := middleware.DefaultAdmissionConfig(engine, policy)
		cfg.SkipPaths = []string{"/health"}
		router.Use(middleware.AdmissionWithConfig(cfg))
	}

	router.GET("/health", func(c *gin.Context) {
		if err := engine.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})

	api.NewHandler(engine).Register(router.Group("/admin/admission"))

	addr := loader.GetString("server.addr")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admission server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
