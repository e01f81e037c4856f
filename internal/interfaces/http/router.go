package httpinterface

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// NewRouter returns the chi router of the REST interface, plus the websocket
// events endpoint and, if enabled, the prometheus metrics.
func NewRouter(opts ServiceOpts) chi.Router {
	h := &handler{
		multiTradeSvc:  opts.MultiTradeSvc,
		singleTradeSvc: opts.SingleTradeSvc,
		pubsubSvc:      opts.PubSubSvc,
	}

	r := chi.NewRouter()
	r.Use(requestLogging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if opts.Events != nil {
		r.Handle("/v1/events", opts.Events.Handler(h.authorizeFromEvents))
	}

	r.Group(func(r chi.Router) {
		r.Use(contentTypeJSON)

		r.Post("/v1/multitrades", h.submitPlan)
		r.Get("/v1/multitrades", h.listMultiTrades)
		r.Get("/v1/multitrades/{id}", h.getMultiTrade)
		r.Post("/v1/multitrades/{id}/acknowledge", h.acknowledge)

		r.Get("/v1/singletrades/{id}", h.getSingleTrade)
		r.Post("/v1/singletrades/{id}/authorize", h.authorize)

		r.Post("/v1/webhooks", h.addWebhook)
		r.Get("/v1/webhooks", h.listWebhooks)
		r.Delete("/v1/webhooks/{id}", h.removeWebhook)
	})

	return r
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.status,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// contentTypeJSON rejects POST requests whose body is not json. Bodyless
// actions like acknowledge are exempted.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				writeError(w, errInvalidBody)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
