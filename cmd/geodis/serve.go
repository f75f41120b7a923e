package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"geodis/internal/api"
	"geodis/internal/ingest"
	"geodis/internal/logger"
	"geodis/internal/metrics"
	"geodis/internal/middleware"
	"geodis/internal/utils"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the HTTP query API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

// newHandler：API 挂载到 API_BASE 前缀，外层依次为访问日志与限流
func newHandler(a *app, cache *api.Cache) http.Handler {
	l := logger.L()
	base := a.cfg.APIBase
	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(a.st, a.idx, cache)
	mux.Handle(base+"/", http.StripPrefix(base, apiMux))
	mux.Handle(base+"/metrics", metrics.Handler())
	mux.HandleFunc(base+"/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.rc.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	var h http.Handler = logger.AccessMiddleware(l)(mux)
	h = middleware.Wrap(h, a.cfg.RateLimitEnabled, a.cfg.RateLimitQPS)
	return h
}

func serve(ctx context.Context, a *app) error {
	l := logger.L()
	cache := api.NewCache(a.cfg.CacheSize, a.cfg.CacheTTL)
	startRefresh(ctx, a, cache)

	s := &http.Server{Addr: a.cfg.Addr, Handler: newHandler(a, cache), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		if a.cfg.TLSEnabled {
			if err := utils.EnsureSelfSignedCert(a.cfg.TLSCertPath, a.cfg.TLSKeyPath, "geodis.local"); err != nil {
				errc <- err
				return
			}
			l.Info("listening_tls", "addr", a.cfg.Addr, "base", a.cfg.APIBase, "cert", a.cfg.TLSCertPath)
			errc <- s.ListenAndServeTLS(a.cfg.TLSCertPath, a.cfg.TLSKeyPath)
			return
		}
		l.Info("listening", "addr", a.cfg.Addr, "base", a.cfg.APIBase)
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	l.Info("shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(sctx)
}

// startRefresh：配置了 INGEST_KIND/INGEST_SRC 时每周重新导入，完成后清空结果缓存
func startRefresh(ctx context.Context, a *app, cache *api.Cache) {
	c := a.cfg
	if c.IngestKind == "" || c.IngestSrc == "" {
		return
	}
	loc, err := time.LoadLocation(c.IngestTZ)
	if err != nil {
		logger.L().Warn("ingest_tz_invalid", "tz", c.IngestTZ, "err", err)
		loc = time.UTC
	}
	ingest.StartWeekly(ctx, loc, c.IngestHour, func(ctx context.Context) error {
		if _, _, err := runImport(ctx, a, c.IngestKind, c.IngestSrc, c.BatchSize, c.IngestCities); err != nil {
			return err
		}
		cache.Purge()
		return nil
	})
}
