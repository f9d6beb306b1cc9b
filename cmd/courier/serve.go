package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bowerhall/courier/internal/alerts"
	"github.com/bowerhall/courier/internal/approval"
	"github.com/bowerhall/courier/internal/budget"
	"github.com/bowerhall/courier/internal/config"
	"github.com/bowerhall/courier/internal/connection"
	"github.com/bowerhall/courier/internal/conversation"
	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/media"
	"github.com/bowerhall/courier/internal/notify"
	"github.com/bowerhall/courier/internal/orchestrator"
	"github.com/bowerhall/courier/internal/pipeline"
	"github.com/bowerhall/courier/internal/presence"
	"github.com/bowerhall/courier/internal/shell"
	"github.com/bowerhall/courier/internal/speech"
	"github.com/bowerhall/courier/internal/storage"
	"github.com/bowerhall/courier/internal/video"
)

const sweepSchedule = "@every 15m"

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub(notify.DefaultBuffer)
	defer hub.Close()

	alerter := alerts.New(func(severity alerts.Severity, text string) {
		hub.Publish(notify.Alert(severity.String(), text))
	}, time.Hour)

	model, err := newModel(cfg, alerter)
	if err != nil {
		return err
	}

	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}

	sup := connection.New(tr, connection.Config{
		ReconnectDelay: cfg.Session.ReconnectDelay,
		Alerts:         alerter,
	})

	mode, err := shell.ParseMode(cfg.Shell.Policy)
	if err != nil {
		return err
	}
	approvals := approval.NewManager(cfg.Shell.ApprovalTimeout)

	deps := pipeline.Deps{
		Messenger: tr,
		Presence: presence.New(tr, presence.Config{
			MinThink: cfg.Session.MinThink,
			MaxThink: cfg.Session.MaxThink,
		}),
		History: conversation.NewStore(cfg.Session.HistoryTurns),
		AI:      model,
		Screen:  media.NewScreen(cfg.TmpDir),
		Player:  media.NewOpener(),
		Shell: shell.NewRunner(shell.Config{
			Timeout:   cfg.Shell.Timeout,
			OutputCap: cfg.Shell.OutputCap,
		}),
		Policy:      shell.NewPolicy(mode, cfg.Shell.Allow),
		Approvals:   approvals,
		Events:      hub,
		SettleDelay: cfg.Session.SettleDelay,
		OnAIError: func(err error) {
			if !llm.IsKind(err, llm.KindQuota) {
				alerter.Warn("ai", "completions failing", err)
			}
		},
	}

	if cfg.Speech.Enabled {
		sc := speech.New(speech.Config{
			APIKey:   cfg.Speech.APIKey,
			BaseURL:  cfg.Speech.BaseURL,
			STTModel: cfg.Speech.STTModel,
			TTSModel: cfg.Speech.TTSModel,
			Voice:    cfg.Speech.Voice,
		})
		deps.Transcriber = sc
		deps.Synthesizer = sc
		deps.Transcoder = media.NewFFmpeg(cfg.Speech.FFmpegPath, cfg.TmpDir)
		logger.Info("voice enabled")
	}

	if cfg.Video.Enabled {
		yt, err := video.NewYouTube(ctx, cfg.Video.APIKey)
		if err != nil {
			logger.Error("failed to create youtube client", "error", err)
		} else {
			deps.Videos = yt
			logger.Info("video search enabled")
		}
	}

	archive := newArchive(ctx, cfg)
	if archive != nil {
		deps.Archive = archive
	}

	exec := pipeline.New(deps)

	orch := orchestrator.New(sup, exec, orchestrator.Config{
		Owners:    cfg.Owners,
		Approvals: approvals,
		Events:    hub,
		Replies:   tr,
		OnCode:    printLinkCode,
	})

	status := func(ctx context.Context) notify.Status {
		snap := sup.State()
		st := notify.Status{
			State:       string(snap.State),
			Connected:   snap.State == connection.Connected,
			LinkCode:    snap.LinkCode,
			Transport:   tr.Name(),
			ActiveLanes: orch.ActiveLanes(),
			Subscribers: hub.Subscribers(),
			Dropped:     hub.Dropped(),
		}
		if archive != nil {
			up := archive.Healthy(ctx)
			st.ArchiveUp = &up
		}
		return st
	}

	server := notify.NewServer(cfg.HTTPAddr, hub, status, sup.Reset)
	sweeper := media.NewSweeper(cfg.TmpDir, time.Hour)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx, sweepSchedule) })

	logger.Info("courier started",
		"transport", tr.Name(),
		"llm", cfg.LLM.Provider,
		"shell_policy", mode,
		"owners", len(cfg.Owners),
		"http", cfg.HTTPAddr,
	)

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func newModel(cfg *config.Config, alerter *alerts.Alerter) (llm.LLM, error) {
	model, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm: %w", err)
	}

	if cfg.Budget.DailyLimit <= 0 {
		return model, nil
	}

	tracker := budget.NewTracker(
		budget.Config{
			DailyLimit: cfg.Budget.DailyLimit,
			WarnAt:     cfg.Budget.WarnAt,
		},

		func(used, limit int) {
			logger.Warn("ai quota warning", "used", used, "limit", limit)
			alerter.Warn("budget", fmt.Sprintf("%d/%d AI requests used today", used, limit), nil)
		},

		func(used, limit int) {
			logger.Error("ai quota exceeded", "used", used, "limit", limit)
			alerter.Critical("budget", fmt.Sprintf("daily AI limit of %d reached, replies paused until tomorrow", limit), nil)
		},
	)

	logger.Info("ai quota enabled", "limit", cfg.Budget.DailyLimit, "warnAt", cfg.Budget.WarnAt)
	return llm.WithQuota(model, tracker), nil
}

// newArchive returns nil when storage is disabled or unreachable; the bot
// runs without archiving in that case.
func newArchive(ctx context.Context, cfg *config.Config) *storage.Client {
	if !cfg.Storage.Enabled {
		return nil
	}

	client, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
	})
	if err != nil {
		logger.Error("failed to create storage client", "error", err)
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Init(initCtx); err != nil {
		logger.Error("failed to init archive bucket", "error", err)
		return nil
	}

	logger.Info("media archive enabled", "endpoint", cfg.Storage.Endpoint, "bucket", client.Bucket())
	return client
}

func printLinkCode(code string) {
	fmt.Fprintln(os.Stdout, "Scan this code with the messaging app to link courier:")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
}
