// visitor-sim drives one visitor session against a running engagement API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"card-engagement-api/internal/client"
	"card-engagement-api/internal/config"
	"card-engagement-api/internal/dwell"
	"card-engagement-api/internal/logger"
	"card-engagement-api/internal/models"
	"card-engagement-api/internal/syncer"
	"card-engagement-api/internal/tracing"
	"card-engagement-api/internal/tracker"
	"card-engagement-api/internal/visits"
)

func main() {
	configFile := flag.String("config", "", "Config file path (JSON or TOML)")
	apiURL := flag.String("api", "http://localhost:8080", "Engagement API base URL")
	cardID := flag.String("card", "", "Card id being visited")
	consent := flag.Bool("consent", true, "Visitor granted tracking consent")
	actions := flag.String("actions", "", "Comma-separated actions to record, e.g. phone_click,whatsapp_click")
	stay := flag.Duration("stay", 0, "How long the visitor stays on the card")
	visitsPath := flag.String("visits", "", "SQLite file holding the local visit counter (empty: in-memory)")
	name := flag.String("name", "", "Contact name to submit")
	email := flag.String("email", "", "Contact email to submit")
	phone := flag.String("phone", "", "Contact phone to submit")
	company := flag.String("company", "", "Contact company to submit")
	flag.Parse()

	if *cardID == "" {
		fmt.Fprintln(os.Stderr, "-card is required")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Env)

	contact := models.ContactFields{Name: *name, Email: *email, Phone: *phone, Company: *company}
	if err := simulate(cfg, log, simulation{
		apiURL:     *apiURL,
		cardID:     *cardID,
		consent:    *consent,
		actions:    parseActions(*actions),
		stay:       *stay,
		visitsPath: *visitsPath,
		contact:    contact,
	}); err != nil {
		log.Error("simulation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type simulation struct {
	apiURL     string
	cardID     string
	consent    bool
	actions    []models.ActionKind
	stay       time.Duration
	visitsPath string
	contact    models.ContactFields
}

func simulate(cfg *config.Config, log *slog.Logger, sim simulation) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Installs the propagator so the API sees our trace context.
	if _, err := tracing.Init(tracing.Config{}); err != nil {
		return err
	}

	var store visits.Store = visits.NewMemoryStore()
	if sim.visitsPath != "" {
		sqliteStore, err := visits.OpenSQLiteStore(sim.visitsPath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	dwellCfg := dwell.Config{
		Threshold: cfg.DwellThreshold(),
		Interval:  cfg.DwellTick(),
		MaxStep:   2 * cfg.DwellTick(),
	}

	tr := tracker.New(tracker.Options{
		CardID:     sim.cardID,
		HasConsent: sim.consent,
		Visits:     visits.NewCounter(store, log),
		Sync:       syncer.New(client.New(sim.apiURL), log),
		AutoSync:   true,
		Dwell:      dwellCfg,
		Logger:     log,
	})
	defer tr.Close()

	visit := tr.Start(ctx)
	for _, kind := range sim.actions {
		if !tr.Record(kind) {
			log.Info("action not scored", slog.String("action", string(kind)))
		}
	}

	if sim.stay > 0 {
		select {
		case <-time.After(sim.stay):
		case <-ctx.Done():
		}
	}

	var rec models.EngagementRecord
	var err error
	if !sim.contact.IsEmpty() {
		rec, err = tr.SubmitContact(ctx, sim.contact)
	} else {
		rec, err = tr.Sync(ctx, nil)
	}
	tr.Wait()
	if err != nil {
		return err
	}

	snap := tr.Snapshot()
	fmt.Printf("visit=%d score=%d temperature=%s actions=%v record=%s\n",
		visit, snap.Score, snap.Temperature, snap.ActionsTaken, rec.ID)
	return nil
}

func parseActions(raw string) []models.ActionKind {
	var out []models.ActionKind
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, models.ActionKind(part))
		}
	}
	return out
}
