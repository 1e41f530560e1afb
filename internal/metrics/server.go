package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazywh/lazywh/internal/models"
)

// StatusFunc reports the realtime channel status for /healthz
type StatusFunc func() models.ConnectionStatus

type healthResponse struct {
	Scope            string `json:"scope"`
	State            string `json:"state"`
	ReconnectPending bool   `json:"reconnect_pending"`
	Attempts         int    `json:"attempts"`
	LastError        string `json:"last_error,omitempty"`
	Since            string `json:"since,omitempty"`
}

// NewRouter serves /metrics and /healthz
func NewRouter(status StatusFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := status()
		resp := healthResponse{
			Scope:            st.Scope,
			State:            st.State.String(),
			ReconnectPending: st.ReconnectPending,
			Attempts:         st.Attempts,
			LastError:        st.LastError,
		}
		if !st.Since.IsZero() {
			resp.Since = st.Since.UTC().Format(time.RFC3339)
		}

		code := http.StatusOK
		if st.Scope != "" && st.State != models.StateOpen {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}

// Serve runs the metrics server until ctx is cancelled
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
