package cli

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davarch/ci-wiki-sync/internal/application"
	"github.com/davarch/ci-wiki-sync/internal/domain"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/config"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/confluence_http"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/gitlab_http"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/logging"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/state_fs"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const reloadDelay = 300 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync configured targets whenever a new pipeline finishes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.New(verbose)
		defer func() { _ = log.Sync() }()

		cfg, err := loadConfig()
		if err != nil {
			log.Fatal("config", zap.Error(err))
		}

		targets := enabledTargets(cfg)
		if len(targets) == 0 {
			log.Fatal("no enabled targets")
		}

		state, err := state_fs.Open(fs, cfg.Watch.StatePath)
		if err != nil {
			log.Fatal("state", zap.String("path", cfg.Watch.StatePath), zap.Error(err))
		}

		gl := gitlab_http.New(cfg.GitLab.URL, cfg.GitLab.Token, cfg.GitLab.Timeout)
		wiki := confluence_http.New(cfg.Confluence.URL, cfg.Confluence.Email, cfg.Confluence.Token, cfg.Confluence.Timeout)

		syncer := application.NewSyncUseCase(log, gl, wiki, syncOptions(cfg))
		poll := application.NewPollUseCase(log, gl, syncer, state)
		sched := application.NewScheduler(log, poll, targets, cfg.Watch.Interval, cfg.Watch.PauseFile)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		watchAndReload(ctx, cfgPath, log, sched)

		log.Info("start",
			zap.String("version", version),
			zap.Int("targets", len(targets)),
			zap.Duration("every", cfg.Watch.Interval),
			zap.String("state", cfg.Watch.StatePath),
			zap.String("gitlab", cfg.GitLab.URL),
			zap.String("confluence", cfg.Confluence.URL),
			zap.String("pause_file", cfg.Watch.PauseFile),
		)
		sched.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func enabledTargets(cfg config.Config) []domain.Target {
	var out []domain.Target
	for _, t := range cfg.Watch.Targets {
		if t.Enabled {
			out = append(out, t.Domain())
		}
	}
	return out
}

// watchAndReload swaps the scheduler's targets when the config file changes.
// Credentials and intervals are only read at start. The returned channel is
// closed once the watcher has stopped, which happens when ctx is done.
func watchAndReload(ctx context.Context, cfgPath string, log *zap.Logger, sched *application.Scheduler) <-chan struct{} {
	done := make(chan struct{})
	if cfgPath == "" {
		close(done)
		return done
	}

	dir := filepath.Dir(cfgPath)
	base := filepath.Base(cfgPath)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify init failed", zap.Error(err))
		close(done)
		return done
	}
	if err := w.Add(dir); err != nil {
		log.Warn("fsnotify add dir failed", zap.String("dir", dir), zap.Error(err))
		_ = w.Close()
		close(done)
		return done
	}

	reload := func() {
		cfg, err := config.Load(fs, cfgPath)
		if err != nil {
			log.Warn("config reload failed", zap.Error(err))
			return
		}
		targets := enabledTargets(cfg)
		if len(targets) == 0 {
			log.Warn("config reload: no enabled targets")
		}
		sched.UpdateTargets(targets)
	}

	go func() {
		// editors write in bursts; reload once things settle
		var timer *time.Timer

		defer func() {
			if timer != nil {
				timer.Stop()
			}
			_ = w.Close()
			close(done)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.AfterFunc(reloadDelay, reload)
				} else {
					timer.Reset(reloadDelay)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()

	return done
}
