// Package dashboard serves read-only charts over the ingested database.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/rs/zerolog"

	"github.com/dvloznov/monzo-tracker/internal/infra/sqlite"
)

// DefaultExcludedCategories are filtered out of the spending view unless
// the request says otherwise. Pot shuffles and savings are not spending.
var DefaultExcludedCategories = []string{"savings", "transfers"}

// Server renders dashboard pages from the SQLite store.
type Server struct {
	store  *sqlite.Store
	log    zerolog.Logger
	router chi.Router
}

// New creates a dashboard server.
func New(store *sqlite.Store, log zerolog.Logger) *Server {
	s := &Server{store: store, log: log}

	r := chi.NewRouter()
	r.Use(recovery(log))
	r.Use(requestLogger(log))
	r.Get("/", s.handleOverview)
	r.Get("/waterfall", s.handleWaterfall)
	r.Get("/spending", s.handleSpending)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/balances", s.handleBalances)
	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("dashboard listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	balances, err := s.store.DailyBalances(ctx, sinceParam(r))
	if err != nil {
		s.serverError(w, err)
		return
	}
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.serverError(w, err)
		return
	}
	pots, err := s.store.ListPots(ctx, false)
	if err != nil {
		s.serverError(w, err)
		return
	}

	names := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		names[acc.ID] = accountLabel(acc)
	}

	page := components.NewPage()
	page.PageTitle = "Monzo Dashboard"
	page.AddCharts(balanceChart(balances, names), potsChart(pots))
	s.render(w, page)
}

func (s *Server) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if len(accounts) == 0 {
		http.Error(w, "no accounts ingested yet", http.StatusNotFound)
		return
	}

	accountID := r.URL.Query().Get("account")
	label := ""
	if accountID == "" {
		accountID = accounts[0].ID
		label = accountLabel(accounts[0])
	} else {
		for _, acc := range accounts {
			if acc.ID == accountID {
				label = accountLabel(acc)
			}
		}
		if label == "" {
			http.Error(w, "unknown account", http.StatusNotFound)
			return
		}
	}

	rows, err := s.store.DailyNet(ctx, accountID, sinceParam(r))
	if err != nil {
		s.serverError(w, err)
		return
	}

	page := components.NewPage()
	page.PageTitle = "Monzo Dashboard"
	page.AddCharts(waterfallChart(label, rows))
	s.render(w, page)
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	exclude := DefaultExcludedCategories
	if raw, ok := r.URL.Query()["exclude"]; ok {
		exclude = nil
		for _, chunk := range raw {
			for _, c := range strings.Split(chunk, ",") {
				if c = strings.TrimSpace(c); c != "" {
					exclude = append(exclude, c)
				}
			}
		}
	}

	rows, err := s.store.DailySpending(r.Context(), sinceParam(r), exclude)
	if err != nil {
		s.serverError(w, err)
		return
	}

	page := components.NewPage()
	page.PageTitle = "Monzo Dashboard"
	page.AddCharts(spendingChart(rows, exclude))
	s.render(w, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	out := make(map[string]int64, len(stats))
	for _, st := range stats {
		out[st.Name] = st.Rows
	}
	s.writeJSON(w, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.store.AccountBalances(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, balances)
}

func (s *Server) render(w http.ResponseWriter, page *components.Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		s.log.Error().Err(err).Msg("rendering page")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("dashboard query failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// sinceParam turns a ?days=N query into a cutoff time; zero means all
// history.
func sinceParam(r *http.Request) time.Time {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

func accountLabel(acc sqlite.AccountRow) string {
	switch acc.Type {
	case "uk_retail":
		return "Current"
	case "uk_retail_joint":
		return "Joint"
	case "uk_monzo_flex":
		return "Flex"
	default:
		return acc.Type
	}
}
