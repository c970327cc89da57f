package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/controllers"
	"jobpilot/middleware"
	"jobpilot/services"
	"jobpilot/utils"
)

const maxBodyBytes = 1 << 20

// newRouter builds the HTTP trigger.
func newRouter(cfg *config.AppConfig, sink services.FailureSink, limiter *middleware.RateLimiter) (*gin.Engine, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(utils.Named("http")), middleware.MaxRequestSize(maxBodyBytes), middleware.ValidateJSON())

	rc := controllers.NewRunController(func(ctx context.Context) (controllers.Runner, error) {
		o, err := newOrchestrator(ctx, cfg, sink)
		if err != nil {
			return nil, err
		}
		return o, nil
	}, sink, utils.GetLogger())

	var guards []gin.HandlerFunc
	if cfg.Server.JWTSecret != "" {
		tokens, err := services.NewTriggerTokens(cfg.Server.JWTSecret)
		if err != nil {
			return nil, err
		}
		guards = append(guards, middleware.RequireToken(tokens))
	} else {
		utils.LogWarn("server.jwt_secret is empty, the API is unauthenticated")
	}
	rc.RegisterRoutes(r, limiter.Limit(), guards...)

	shots, err := newScreenshotStore(cfg)
	if err != nil {
		return nil, err
	}
	controllers.NewScreenshotController(shots, utils.Named("screenshots")).RegisterRoutes(r, guards...)

	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, http.StatusOK, "ok", nil)
	})
	return r, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the on-demand trigger over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sink, closeSink, err := newFailureSink(ctx, appConfig)
		if err != nil {
			return err
		}
		defer closeSink()

		limiter := middleware.NewRateLimiter(appConfig.Server.RateLimit, appConfig.Server.RateWindow)
		defer limiter.Stop()

		router, err := newRouter(appConfig, sink, limiter)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              ":" + appConfig.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			utils.LogInfo("Server listening", zap.String("addr", srv.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		utils.LogInfo("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
