package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bonvoyage09/tardybot/internal/bot"
	"github.com/bonvoyage09/tardybot/internal/clock"
	"github.com/bonvoyage09/tardybot/internal/config"
	"github.com/bonvoyage09/tardybot/internal/health"
	"github.com/bonvoyage09/tardybot/internal/logutil"
	"github.com/bonvoyage09/tardybot/internal/onec"
	"github.com/bonvoyage09/tardybot/internal/store"
)

func main() {
	var cfgFile string

	root := &cobra.Command{
		Use:   "tardybot",
		Short: "Telegram bot for tardiness notices with 1C-backed approval",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml, env vars win)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logutil.InitLogger("tardybot", cfg.LogLevel)

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Infof("database ready: %s", cfg.DBPath)

	oc := onec.New(cfg.OnecURL, cfg.OnecSyncURL, cfg.OnecDecisionURL, cfg.OnecUser, cfg.OnecPass)

	hs := health.NewServer(cfg.HTTPAddr)
	go func() {
		log.Infof("health/metrics listening on %s", cfg.HTTPAddr)
		if err := hs.Start(); err != nil {
			log.Errorf("health server: %v", err)
		}
	}()

	b, err := bot.New(bot.Config{Token: cfg.BotToken}, db, oc, clk, log)
	if err != nil {
		return fmt.Errorf("bot init failed: %w", err)
	}
	go b.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received %s, shutting down", sig)

	b.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		log.Errorf("health server shutdown: %v", err)
	}
	return nil
}
