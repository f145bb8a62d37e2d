package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// CallbackServer is a small local HTTP listener that completes the
// login flow: the identity provider redirects the browser back to it
// with the bearer token in the query string.
type CallbackServer struct {
	addr    string
	session *Context
	logger  *slog.Logger
	tokenCh chan string
}

func NewCallbackServer(addr string, session *Context, logger *slog.Logger) *CallbackServer {
	return &CallbackServer{
		addr:    addr,
		session: session,
		logger:  logger,
		tokenCh: make(chan string, 1),
	}
}

// TokenReceived signals once, after the first token arrives.
func (s *CallbackServer) TokenReceived() <-chan string {
	return s.tokenCh
}

func (s *CallbackServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/callback", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}

		s.session.SetCredential(token)
		s.logger.Info("credential received via login callback")

		select {
		case s.tokenCh <- token:
		default:
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Logged in. You can close this tab and return to the client."))
	})

	return r
}

// Run serves the callback listener until ctx is done.
func (s *CallbackServer) Run(ctx context.Context) error {
	server := &http.Server{Addr: s.addr, Handler: s.routes()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
