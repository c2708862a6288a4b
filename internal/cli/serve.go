package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimmer-live/glimmer/internal/api"
	"github.com/glimmer-live/glimmer/internal/app/batch"
	"github.com/glimmer-live/glimmer/internal/app/draw"
	"github.com/glimmer-live/glimmer/internal/app/effects"
	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/leveling"
	"github.com/glimmer-live/glimmer/internal/app/pipeline"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/app/redeem"
	"github.com/glimmer-live/glimmer/internal/daemon"
	"github.com/glimmer-live/glimmer/internal/domain"
	"github.com/glimmer-live/glimmer/internal/infra/cooldown"
	"github.com/glimmer-live/glimmer/internal/infra/speech"
	"github.com/glimmer-live/glimmer/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the glimmer daemon",
	Long:  `Start the HTTP API, the effect queue processor, and the reward pipeline.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	dbPath, err := cfg.StoragePath()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SeedRedeems(domain.DefaultRedeems()); err != nil {
		return err
	}

	// Recover items left running by a previous crash before the
	// processor starts claiming new work.
	if n, err := db.FailStale(time.Now()); err != nil {
		return err
	} else if n > 0 {
		log.Printf("[serve] failed %d stale queue items from previous run", n)
	}

	cooldowns := cooldown.NewStore()
	defer cooldowns.Stop()

	rules := leveling.EmptyRules()
	if cfg.Rewards.RulesFile != "" {
		rules, err = leveling.LoadRules(cfg.Rewards.RulesFile)
		if err != nil {
			return err
		}
		log.Printf("[serve] loaded %d level reward rules", rules.Len())
	}

	led := ledger.New(db)
	q := queue.NewService(db, cfg.Queue.MaxPending)
	lvl := leveling.New(db, led, q, cfg.LevelCurve(), rules)
	pipe := pipeline.New(cooldowns, led, lvl, cfg.Rates())
	bc := batch.New(db, led, lvl)
	rd := redeem.New(db, led, cooldowns, q, cfg.DrawOptions())

	registry, err := effects.New(led, lvl, q)
	if err != nil {
		return err
	}

	proc := queue.NewProcessor(db, cfg.ProcessorConfig())
	proc.SetSpeechDeliverer(speech.NewSynthesizer(os.Stdout))
	proc.RegisterExecutor(domain.KindDraw, draw.New(led, registry, q, nil))
	proc.RegisterExecutor(domain.KindEffect, effects.NewExecutor(registry, led))

	srv := api.NewServer(pipe, led, lvl, bc, rd, q)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}
	if cfg.Rewards.RulesFile != "" {
		srv.SetRulesReload(rules.Reload)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	procDone := make(chan error, 1)
	go func() { procDone <- proc.Run(ctx) }()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpDone := make(chan error, 1)
	go func() {
		log.Printf("[serve] listening on %s", cfg.ListenAddr())
		httpDone <- httpSrv.ListenAndServe()
	}()

	procStopped := false
	select {
	case <-ctx.Done():
		log.Printf("[serve] shutting down")
	case err := <-httpDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case err := <-procDone:
		procStopped = true
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[serve] http shutdown: %v", err)
	}
	if !procStopped {
		if err := <-procDone; err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[serve] processor: %v", err)
		}
	}
	return nil
}
