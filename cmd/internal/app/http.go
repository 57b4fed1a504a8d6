package app

import (
	"context"
	"net/http"
	"time"

	"authgate/cmd/internal/build"
	"authgate/cmd/internal/devreload"
)

// routes are the handlers registerHTTP mounts next to the health probes.
type routes struct {
	log     Logger
	cfg     Config
	current *build.Current

	// ready checks the session backend; nil means nothing to check.
	ready func(ctx context.Context) error

	site      http.Handler
	devReload http.Handler
	metrics   http.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.current.Load() == nil {
			http.Error(w, "build not loaded", http.StatusServiceUnavailable)
			return
		}

		if rt.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := rt.ready(ctx)
			cancel()
			if err != nil {
				http.Error(w, "session backend not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.session.not_ready", "backend", rt.cfg.Session.Backend, "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics)
	}

	if rt.devReload != nil {
		mux.Handle(devreload.Path, rt.devReload)
	}

	mux.Handle("/", rt.site)
}
