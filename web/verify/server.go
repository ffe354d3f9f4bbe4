// Package verify serves the magic-link verification callback alongside
// health and metrics endpoints.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/communibot/core/logger"
	"github.com/m3rciful/communibot/core/metrics"
	"github.com/m3rciful/communibot/services/identity"
	"log/slog"
)

const component = "verify"

// Server is the verification callback HTTP server.
type Server struct {
	ids  *identity.Service
	http *http.Server
}

// NewServer builds the server on the given listen address.
func NewServer(listen string, ids *identity.Service) *Server {
	s := &Server{ids: ids}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/verify", s.handleVerify)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info(ctx, component, "verify.listen",
		slog.String("addr", s.http.Addr),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("verify shutdown: %w", err)
	}
	return nil
}

// handleVerify completes the link from the emailed URL. The page speaks to a
// human in a browser; the bot-side session may be long gone and is not needed.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")
	telegramID, err := strconv.ParseInt(r.URL.Query().Get("telegram_id"), 10, 64)
	if _, tokenErr := uuid.Parse(token); tokenErr != nil || err != nil {
		metrics.LinksCompletedTotal.WithLabelValues("invalid").Inc()
		writePage(w, http.StatusBadRequest, "Invalid link", "This verification link is malformed. Request a new one with /link in the bot.")
		return
	}

	u, err := s.ids.CompleteLink(ctx, token, telegramID)
	switch {
	case err == nil:
		metrics.LinksCompletedTotal.WithLabelValues("ok").Inc()
		logger.Info(ctx, component, "verify.completed",
			slog.String("status", "ok"),
			slog.Int64("user_id", telegramID),
		)
		writePage(w, http.StatusOK, "Account linked",
			fmt.Sprintf("Your Telegram account is now linked to %s. You can close this page and return to the bot.", *u.Email))

	case errors.Is(err, identity.ErrTokenExpired):
		metrics.LinksCompletedTotal.WithLabelValues("expired").Inc()
		writePage(w, http.StatusGone, "Link expired", "This verification link has expired. Request a new one with /link in the bot.")

	case errors.Is(err, identity.ErrTokenInvalid):
		metrics.LinksCompletedTotal.WithLabelValues("invalid").Inc()
		writePage(w, http.StatusBadRequest, "Invalid link", "This verification link is invalid or was already used. Request a new one with /link in the bot.")

	case errors.Is(err, identity.ErrEmailTaken):
		metrics.LinksCompletedTotal.WithLabelValues("conflict").Inc()
		writePage(w, http.StatusConflict, "Email already linked", "This email address is already linked to a different Telegram account.")

	case errors.Is(err, identity.ErrTelegramBound):
		metrics.LinksCompletedTotal.WithLabelValues("conflict").Inc()
		writePage(w, http.StatusConflict, "Account already linked", "This Telegram account is already linked to a different email address.")

	default:
		metrics.LinksCompletedTotal.WithLabelValues("error").Inc()
		logger.Error(ctx, component, "verify.completed",
			slog.String("status", "fail"),
			slog.Int64("user_id", telegramID),
			slog.String("err", err.Error()),
		)
		writePage(w, http.StatusInternalServerError, "Something went wrong", "We could not complete the verification. Please try again later.")
	}
}

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, title, title, body)
}
