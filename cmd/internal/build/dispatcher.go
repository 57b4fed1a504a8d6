package build

import (
	"log/slog"
	"net/http"
)

// HandlerFactory builds the request handler for one build.
type HandlerFactory func(*Build) (http.Handler, error)

// Dispatcher serves every request with the handler of the build that was
// current when the request arrived.
type Dispatcher struct {
	current *Current
	factory HandlerFactory
	log     *slog.Logger
}

func NewDispatcher(current *Current, factory HandlerFactory, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{current: current, factory: factory, log: log}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b := d.current.Load()
	if b == nil {
		http.Error(w, "build not ready", http.StatusServiceUnavailable)
		return
	}

	h, err := d.factory(b)
	if err != nil {
		d.log.Error("build.handler.fail", "version", b.VersionString(), "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.ServeHTTP(w, r)
}
