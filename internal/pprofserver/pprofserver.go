// Package pprofserver exposes the runtime profiles and the playground metrics on a separate listener so that they
// are never reachable through the public address.
package pprofserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/myrjola/mavis/internal/errors"
)

func Handle(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
}

func newServer(logger *slog.Logger, metrics http.Handler) *http.Server {
	mux := http.NewServeMux()
	Handle(mux)
	if metrics != nil {
		mux.Handle("GET /debug/metrics", metrics)
	}
	return &http.Server{ //nolint:exhaustruct // profiles may take long, so no timeouts besides the header one
		Handler:           mux,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ReadHeaderTimeout: time.Second,
	}
}

// Launch serves pprof, and metrics at /debug/metrics when given, at addr until ctx is cancelled. Use a loopback
// address such as localhost:6060.
func Launch(ctx context.Context, addr string, logger *slog.Logger, metrics http.Handler) error {
	logger = logger.With(slog.String("source", "pprofserver"))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "pprof listen", slog.String("addr", addr))
	}
	srv := newServer(logger, metrics)
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		logger.LogAttrs(ctx, slog.LevelInfo, "starting debug server", slog.String("pprof_addr", listener.Addr().String()))
		if serveErr := srv.Serve(listener); !errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = errors.Wrap(serveErr, "pprof serve")
			logger.LogAttrs(ctx, slog.LevelError, "pprof server stopped", errors.SlogError(serveErr))
		}
	}()
	return nil
}
