package token

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"

	"github.com/go-chi/chi/v5"
)

const callbackPage = `<html><body style="font-family: sans-serif; text-align: center; padding-top: 50px;">
<h1>Authorization successful</h1>
<p>You can close this window and return to the terminal.</p>
<p>Don't forget to <strong>approve access in the Monzo app</strong>.</p>
</body></html>`

// captureCallback serves the OAuth redirect endpoint until a code arrives
// for the expected state, the context is cancelled, or the listener fails.
func (s *Store) captureCallback(ctx context.Context, state, authURL string) (string, error) {
	codes := make(chan string, 1)

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != state {
			// Usually an approved tab from a previous run.
			s.log.Warn().Msg("state mismatch on callback; close old Monzo tabs and use the newest link")
			http.Error(w, "state mismatch - used an old tab? close Monzo tabs and retry", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, callbackPage)
		select {
		case codes <- code:
		default:
		}
	})

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return "", fmt.Errorf("listening on %s: %w", s.listenAddr, err)
	}
	srv := &http.Server{Handler: r}
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())

	s.log.Info().Str("listen_addr", s.listenAddr).Msg("waiting for OAuth callback")
	s.log.Info().Msgf("if the browser does not open, visit:\n  %s", authURL)
	if err := s.openBrowser(authURL); err != nil {
		s.log.Warn().Err(err).Msg("could not open browser")
	}

	select {
	case code := <-codes:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
