package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/monzo-tracker/internal/config"
	"github.com/dvloznov/monzo-tracker/internal/dashboard"
	"github.com/dvloznov/monzo-tracker/internal/domain"
	"github.com/dvloznov/monzo-tracker/internal/export"
	"github.com/dvloznov/monzo-tracker/internal/infra/sqlite"
	"github.com/dvloznov/monzo-tracker/internal/ingest"
	"github.com/dvloznov/monzo-tracker/internal/logger"
	"github.com/dvloznov/monzo-tracker/internal/monzo"
	"github.com/dvloznov/monzo-tracker/internal/token"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "auth":
		runAuth(log)
	case "export":
		runExport(log)
	case "ingest":
		runIngest(log)
	case "db":
		runDB(log)
	case "status":
		runStatus(log)
	case "dashboard":
		runDashboard(log)
	case "whoami":
		runWhoAmI(log)
	case "logout":
		runLogout(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Monzo Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  monzo <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  auth       Authenticate with Monzo (use --force to reauthenticate)")
	fmt.Println("  export     Export data to the JSON cache and ingest it")
	fmt.Println("  ingest     Re-ingest the existing JSON cache")
	fmt.Println("  db         Manage the database (setup|stats|accounts|reset)")
	fmt.Println("  status     Show token, cache and database status")
	fmt.Println("  dashboard  Serve the dashboard")
	fmt.Println("  whoami     Show the authenticated user")
	fmt.Println("  logout     Invalidate the access token and remove it")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'monzo <command> -h' for more information on a command.")
}

func newClient(cfg config.Config, store *token.Store, log zerolog.Logger) *monzo.Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return monzo.NewClient(httpClient, cfg.APIURL, store, monzo.DefaultRetryConfig, log)
}

func runAuth(log zerolog.Logger) {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	force := fs.Bool("force", false, "Discard the existing token and reauthenticate")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	store := token.NewStore(cfg, log)

	if *force {
		if err := store.Delete(); err != nil {
			log.Fatal().Err(err).Msg("Removing existing token failed")
		}
		log.Info().Msg("Removed existing token")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	t, err := store.Acquire(ctx, *force)
	if err != nil {
		log.Fatal().Err(err).Msg("Authentication failed")
	}

	fmt.Printf("Authenticated. Token expires %s.\n", t.ExpiresAt.Local().Format(time.RFC1123))
	fmt.Println("Approve the access request in the Monzo app, then run 'monzo export' within 5 minutes for full history.")
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	days := fs.Int("d", 0, "Days of history (0 = full history)")
	fs.IntVar(days, "days", 0, "Days of history (0 = full history)")
	noIngest := fs.Bool("no-ingest", false, "Skip database ingest (JSON cache only)")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	store := token.NewStore(cfg, log)

	t, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("No usable token")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client := newClient(cfg, store, log)
	exporter := export.New(client, log)

	snap, err := exporter.Export(ctx, export.Options{
		Days:            *days,
		AuthenticatedAt: t.AuthenticatedAt,
	})
	if err != nil {
		var winErr *domain.AccessWindowError
		if errors.As(err, &winErr) {
			log.Error().Err(err).Msg("Access window expired")
			fmt.Println("Full history needs a fresh strong authentication.")
			fmt.Println("Run 'monzo auth --force', approve in the app, then retry within 5 minutes.")
			fmt.Println("Or export recent data only: monzo export -d 89")
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Export failed")
	}

	if err := export.WriteSnapshot(cfg.CacheFile, snap); err != nil {
		log.Fatal().Err(err).Msg("Saving cache failed")
	}
	fmt.Printf("Saved %d transactions to %s\n", snap.TransactionCount(), cfg.CacheFile)

	if *noIngest {
		fmt.Println("Skipping database ingest (--no-ingest)")
		return
	}

	db, err := sqlite.Open(cfg.DBFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Opening database failed")
	}
	defer db.Close()

	stats, err := ingest.New(db, log).Ingest(ctx, snap)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingest failed")
	}
	printStats(stats.Rows)

	mismatches, err := export.VerifyBalances(ctx, client, db)
	if err != nil {
		log.Warn().Err(err).Msg("Balance verification failed")
		return
	}
	if len(mismatches) == 0 {
		fmt.Println("Balance verification: OK")
		return
	}
	fmt.Println("Balance verification:")
	for _, m := range mismatches {
		fmt.Printf("  %s: MISMATCH (API=%.2f, DB=%.2f, diff=%+.2f)\n",
			m.AccountID, float64(m.API)/100, float64(m.DB)/100, float64(m.Diff())/100)
	}
	fmt.Println("\n  Warning: balance mismatch may indicate missing transactions")
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	snap, err := export.ReadSnapshot(cfg.CacheFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Reading cache failed (run 'monzo export' first)")
	}

	ctx := logger.WithContext(context.Background(), log)

	db, err := sqlite.Open(cfg.DBFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Opening database failed")
	}
	defer db.Close()

	stats, err := ingest.New(db, log).Ingest(ctx, snap)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingest failed")
	}
	printStats(stats.Rows)
}

func runDB(log zerolog.Logger) {
	sub := "setup"
	if len(os.Args) > 2 {
		sub = os.Args[2]
	}

	cfg := config.Load()
	db, err := sqlite.Open(cfg.DBFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Opening database failed")
	}
	defer db.Close()

	ctx := logger.WithContext(context.Background(), log)

	switch sub {
	case "setup", "stats":
		if err := db.Setup(ctx); err != nil {
			log.Fatal().Err(err).Msg("Setup failed")
		}
		stats, err := db.Stats(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Stats failed")
		}
		printStats(stats)

	case "accounts":
		if err := db.Setup(ctx); err != nil {
			log.Fatal().Err(err).Msg("Setup failed")
		}
		accounts, err := db.ListAccounts(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Listing accounts failed")
		}
		for _, acc := range accounts {
			balance, err := db.ComputedBalance(ctx, acc.ID)
			if err != nil {
				log.Fatal().Err(err).Msg("Computing balance failed")
			}
			state := "open"
			if acc.Closed {
				state = "closed"
			}
			fmt.Printf("  %s  %-16s %-6s %6d txns  £%.2f\n",
				acc.ID, acc.Type, state, acc.TransactionCount, float64(balance)/100)
		}

	case "reset":
		fmt.Print("This will DELETE all data. Continue? [y/N] ")
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			os.Exit(1)
		}
		if err := db.Reset(ctx); err != nil {
			log.Fatal().Err(err).Msg("Reset failed")
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown db subcommand: %s (want setup|stats|accounts|reset)\n", sub)
		os.Exit(1)
	}
}

func runStatus(log zerolog.Logger) {
	cfg := config.Load()
	fmt.Println("Monzo Tracker Status")

	store := token.NewStore(cfg, log)
	if t, err := store.Load(); err == nil {
		fmt.Printf("\n  Token: %s\n", cfg.TokenFile)
		fmt.Printf("         %s...\n", prefix(t.AccessToken, 30))
		fmt.Printf("         expires %s\n", t.ExpiresAt.Local().Format(time.RFC1123))
		if t.WithinSCAWindow(time.Now()) {
			fmt.Println("         strong auth window: OPEN (full history available)")
		} else {
			fmt.Println("         strong auth window: closed (last 89 days only)")
		}
	} else {
		fmt.Println("\n  Token: not found")
	}

	if snap, err := export.ReadSnapshot(cfg.CacheFile); err == nil {
		fmt.Printf("\n  Cache: %s\n", cfg.CacheFile)
		fmt.Printf("         Accounts: %d\n", len(snap.Accounts))
		fmt.Printf("         Pots: %d\n", len(snap.Pots))
		fmt.Printf("         Transactions: %d\n", snap.TransactionCount())
		fmt.Printf("         Exported: %s\n", snap.ExportedAt.Format(time.RFC3339))
		if snap.Days > 0 {
			fmt.Printf("         Days: %d\n", snap.Days)
		}
	} else {
		fmt.Println("\n  Cache: not found")
	}

	if _, err := os.Stat(cfg.DBFile); err == nil {
		db, err := sqlite.Open(cfg.DBFile, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Opening database failed")
		}
		defer db.Close()
		ctx := context.Background()
		if err := db.Setup(ctx); err != nil {
			log.Fatal().Err(err).Msg("Setup failed")
		}
		stats, err := db.Stats(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Stats failed")
		}
		fmt.Printf("\n  Database: %s\n", cfg.DBFile)
		for _, st := range stats {
			fmt.Printf("            %s: %d\n", st.Name, st.Rows)
		}
	} else {
		fmt.Println("\n  Database: not found")
	}
}

func runDashboard(log zerolog.Logger) {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	port := fs.Int("p", 8050, "Port to listen on")
	fs.IntVar(port, "port", 8050, "Port to listen on")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	db, err := sqlite.Open(cfg.DBFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Opening database failed")
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := db.Setup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Setup failed")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", *port)
	fmt.Printf("Dashboard at http://%s\n", addr)

	srv := dashboard.New(db, log)
	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Dashboard server failed")
	}
}

func runWhoAmI(log zerolog.Logger) {
	cfg := config.Load()
	store := token.NewStore(cfg, log)

	ctx := logger.WithContext(context.Background(), log)
	identity, err := newClient(cfg, store, log).WhoAmI(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("whoami failed")
	}

	fmt.Printf("  Authenticated: %v\n", identity.Authenticated)
	fmt.Printf("  User:          %s\n", identity.UserID)
	fmt.Printf("  Client:        %s\n", identity.ClientID)
}

func runLogout(log zerolog.Logger) {
	cfg := config.Load()
	store := token.NewStore(cfg, log)

	ctx := logger.WithContext(context.Background(), log)
	if err := newClient(cfg, store, log).Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("Server-side logout failed; removing local token anyway")
	}
	if err := store.Delete(); err != nil {
		log.Fatal().Err(err).Msg("Removing token failed")
	}
	fmt.Println("Logged out.")
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func printStats(stats []sqlite.TableStat) {
	fmt.Println("\nDatabase statistics")
	for _, st := range stats {
		fmt.Printf("  %-16s %6d rows\n", st.Name, st.Rows)
	}
}
