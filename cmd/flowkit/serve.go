package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"flowkit/internal/api"
	"flowkit/internal/auth"
	"flowkit/internal/mcp"
	"flowkit/internal/tls"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the MCP HTTP transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.cfg.Server.Address = addr
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.address)")
	return cmd
}

func newEcho(ctx context.Context, a *app) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = api.ProblemErrorHandler

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("flowkit"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			a.logger.Debug("request", args...)
			return nil
		},
	}))

	var guard []echo.MiddlewareFunc
	if a.cfg.Auth.Issuer != "" || a.cfg.Auth.DevBypass {
		authz, err := auth.New(ctx, a.cfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("auth initialization failed: %w", err)
		}
		guard = append(guard, echo.WrapMiddleware(authz.RequireAuth))

		e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
		e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
		e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))
		a.logger.Info("Authentication enabled", "issuer", a.cfg.Auth.Issuer, "login", authz.LoginEnabled())
	} else {
		a.logger.Warn("Authentication disabled, /api/v1 and /mcp are open")
	}

	api.Mount(e, api.NewHandler(a.flows, version), api.DocsConfig{
		Issuer:   a.cfg.Auth.Issuer,
		ClientID: a.cfg.Auth.ClientID,
	}, guard...)
	a.logger.Info("REST API handlers mounted")

	mountMCP(e, mcp.NewServer(a.flows, version, a.logger), guard...)
	a.logger.Info("MCP protocol handlers mounted")

	return e, nil
}

// mountMCP serves the MCP HTTP transports under /mcp behind the same
// middleware as the REST API.
func mountMCP(e *echo.Echo, mcpServer *mcp.Server, mw ...echo.MiddlewareFunc) {
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	h := echo.WrapHandler(mcpHandlers)
	e.Any("/mcp", h, mw...)
	e.Any("/mcp/*", h, mw...)
}

func serve(ctx context.Context, a *app) error {
	e, err := newEcho(ctx, a)
	if err != nil {
		return err
	}

	cfg := a.cfg
	if cfg.TLS.Enable {
		generated, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return err
		}
		if generated {
			a.logger.Warn("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable, "version", version)
		if cfg.TLS.Enable {
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				a.logger.Error("Server close error", "error", err)
			}
		}

		a.logger.Info("Server stopped gracefully")
		return nil
	}
}
