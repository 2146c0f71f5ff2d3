/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan servicing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, read LOG_LEVEL
  2. Initialize SQLite store
  3. Wire service, journal, notifier, product catalogue
  4. Start the COB cron scheduler
  5. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port           HTTP server port (default: 8080)
  -db             SQLite database path (default: loans.db)
                  Use ":memory:" for in-memory database
  -business-date  Starting business date (default: today, UTC)
  -cob-spec       Cron spec for the nightly batch (default: midnight)
  -no-cob         Disable the scheduler (manual COB via the admin API)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the COB scheduler (waits for a running batch)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

ENVIRONMENT:
  LOG_LEVEL  debug|info|warn|error (default: info)

SEE ALSO:
  - api/server.go: Router configuration
  - cob/scheduler.go: Nightly batch
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/accounting"
	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/cob"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/product"
	"github.com/warp/loan-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "loans.db", "SQLite database path")
	businessDate := flag.String("business-date", "", "starting business date (YYYY-MM-DD, default today)")
	cobSpec := flag.String("cob-spec", "0 0 * * *", "cron spec for the nightly COB batch")
	noCOB := flag.Bool("no-cob", false, "disable the COB scheduler")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	// Store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Business calendar
	start := loan.DateOf(time.Now().UTC())
	if *businessDate != "" {
		if start, err = loan.ParseDate(*businessDate); err != nil {
			logger.WithError(err).Fatal("invalid -business-date")
		}
	}
	calendar := loan.NewBusinessCalendar(start)

	// Engine wiring
	journal := accounting.NewJournal(logger)
	notifier := api.NewEventNotifier(logger)

	svc := loan.NewService(store, calendar)
	svc.Journal = journal
	svc.Notifier = notifier

	catalogue := product.NewCatalogue()
	registerDefaultProducts(catalogue, logger)

	// COB batch
	driver := cob.NewDriver(store, svc.Locks(), logger)
	driver.Journal = journal
	scheduler := cob.NewScheduler(driver, calendar, logger)
	scheduler.Spec = *cobSpec
	if !*noCOB {
		if err := scheduler.Start(); err != nil {
			logger.WithError(err).Fatal("failed to start cob scheduler")
		}
		defer scheduler.Stop()
	}

	// HTTP
	handler := api.NewHandler(svc, catalogue, calendar)
	handler.COB = scheduler
	handler.Journal = journal
	handler.Log = logger

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":          *port,
			"business_date": calendar.BusinessDate().String(),
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}
	logger.Info("server stopped")
}

// registerDefaultProducts seeds the catalogue so a fresh install can open
// loans immediately. Real deployments add products via the API.
func registerDefaultProducts(catalogue *product.Catalogue, logger *logrus.Logger) {
	for _, p := range []*product.Product{
		product.PersonalLoan("personal-12m", "Personal Loan 12m", "USD", 9.99, 12),
		product.BNPLProduct("bnpl-4", "Pay in 4", "USD", 3, 25),
		product.FlatRateLoan("flat-6m", "Flat Rate 6m", "USD", 12, 6),
		product.ProgressiveLoan("progressive-24m", "Progressive 24m", "USD", 7.5, 24, 1),
	} {
		if err := catalogue.Register(p); err != nil {
			logger.WithError(err).WithField("product_id", p.ID).Warn("failed to register product")
		}
	}
}
