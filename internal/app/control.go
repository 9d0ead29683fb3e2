package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/vk/slogxml/internal/cfgerr"
)

// ControlHandler serves the health endpoint and lets operators read and
// move the declared switches while the process runs.
func (a *App) ControlHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.HandleFunc("GET /switches", a.listSwitches)
	mux.HandleFunc("PUT /switches/level/{name}", a.putLevelSwitch)
	mux.HandleFunc("PUT /switches/filter/{name}", a.putFilterSwitch)
	return mux
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) listSwitches(w http.ResponseWriter, _ *http.Request) {
	s := a.Summary()
	if s == nil {
		http.Error(w, errNotLoaded.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"minimumLevel": s.MinimumLevel,
		"levels":       s.LevelSwitches,
		"filters":      s.FilterSwitches,
	})
}

func (a *App) putLevelSwitch(w http.ResponseWriter, r *http.Request) {
	a.putSwitch(w, r, a.SetLevelSwitch)
}

func (a *App) putFilterSwitch(w http.ResponseWriter, r *http.Request) {
	a.putSwitch(w, r, a.SetFilterSwitch)
}

func (a *App) putSwitch(w http.ResponseWriter, r *http.Request, set func(name, value string) error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = set(r.PathValue("name"), string(body))
	var unknown *cfgerr.UnknownSwitchError
	switch {
	case errors.As(err, &unknown):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Serve runs the control server on the configured port until ctx is done,
// then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.config.ControlPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control server: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	a.httpServer = &http.Server{Handler: a.ControlHandler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Control server starting", "address", ln.Addr().String())
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.logger.Info("Shutting down control server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Control server shutdown failed", "error", err)
		return err
	}
	a.logger.Debug("Control server shut down gracefully.")
	return nil
}
