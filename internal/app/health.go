package app

import (
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"

	"talko/pkg/logger"
)

// startHealthSidecar serves /healthz on a dedicated port with fasthttp so
// load-balancer probes never queue behind API traffic. Disabled when no
// health port is configured. Returns a stop func.
func (a *App) startHealthSidecar() func() {
	port := a.cfg.Server.HealthPort
	if port <= 0 {
		return func() {}
	}
	addr := net.JoinHostPort(a.cfg.Server.Address, fmt.Sprintf("%d", port))

	srv := &fasthttp.Server{
		Name:               "talko-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/health", "/healthz":
				ctx.Response.Header.Set("Content-Type", "application/json")
				if !a.store.Ready() {
					ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
					_, _ = ctx.WriteString(`{"status":"not ready"}`)
					return
				}
				ctx.SetStatusCode(fasthttp.StatusOK)
				_, _ = ctx.WriteString(fmt.Sprintf(`{"status":"ok","version":"%s"}`, a.version))
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}

	go func() {
		logger.Info("health_sidecar_listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil {
			logger.Warn("health_sidecar_exit", "error", err)
		}
	}()
	return func() { _ = srv.Shutdown() }
}
