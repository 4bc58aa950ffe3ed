package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/davarch/ci-wiki-sync/internal/application"
	"github.com/davarch/ci-wiki-sync/internal/domain"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/config"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/confluence_http"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/gitlab_http"
	"github.com/davarch/ci-wiki-sync/internal/infrastructure/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncPipelineID int64
	syncProjectID  string
	syncPageID     string
	syncRef        string
	syncSection    string
	syncDryRun     bool

	overrides config.Overrides
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish one pipeline into its Confluence page section",
	Long: `Fetch a pipeline, its test report and recent history from GitLab, render
them into an HTML fragment and replace the matching section of a Confluence
page. The section is the heading named after the pipeline, or the value of
--section, at the level set by options.heading_level (1 or 2, default 2).
A missing section is appended to the page.

Inside a GitLab CI job the pipeline, project and ref default to
CI_PIPELINE_ID, CI_PROJECT_ID and CI_COMMIT_REF_NAME.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New(verbose)
		defer func() { _ = log.Sync() }()

		req, err := syncRequest()
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		gl := gitlab_http.New(cfg.GitLab.URL, cfg.GitLab.Token, cfg.GitLab.Timeout)
		wiki := confluence_http.New(cfg.Confluence.URL, cfg.Confluence.Email, cfg.Confluence.Token, cfg.Confluence.Timeout)
		uc := application.NewSyncUseCase(log, gl, wiki, syncOptions(cfg))

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log.Debug("sync",
			zap.String("project", req.ProjectID),
			zap.Int64("pipeline", req.PipelineID),
			zap.String("page", req.PageID),
			zap.String("gitlab", cfg.GitLab.URL),
			zap.String("confluence", cfg.Confluence.URL),
		)

		res, err := uc.Sync(ctx, req)
		if err != nil {
			log.Error("sync failed", zap.Int64("pipeline", req.PipelineID), zap.String("page", req.PageID), zap.Error(err))
			return err
		}

		if req.DryRun {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Document)
			return nil
		}
		if res.Written {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "section %q %s, page %s now at version %d\n", res.Section, res.Action, req.PageID, res.Version)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "section %q already up to date\n", res.Section)
		}
		return nil
	},
}

func init() {
	f := syncCmd.Flags()
	f.Int64VarP(&syncPipelineID, "pipeline-id", "p", 0, "GitLab pipeline ID (CI_PIPELINE_ID)")
	f.StringVar(&syncProjectID, "project-id", "", "GitLab project ID or path (PROJECT_ID, CI_PROJECT_ID)")
	f.StringVar(&syncPageID, "confluence-page-id", "", "Confluence page ID (CONFLUENCE_PAGE_ID)")
	f.StringVar(&syncRef, "ref", "", "only chart history of this ref (CI_COMMIT_REF_NAME)")
	f.StringVar(&syncSection, "section", "", "section heading to update, defaults to the pipeline name")
	f.BoolVar(&syncDryRun, "dry-run", false, "print the merged page instead of writing it")

	f.StringVar(&overrides.GitLabURL, "gitlab-url", "", "GitLab URL")
	f.StringVar(&overrides.GitLabToken, "gitlab-token", "", "GitLab private token")
	f.StringVar(&overrides.ConfluenceURL, "confluence-url", "", "Confluence URL")
	f.StringVar(&overrides.ConfluenceEmail, "confluence-email", "", "Confluence account email")
	f.StringVar(&overrides.ConfluenceToken, "confluence-token", "", "Confluence API token")
	f.IntVar(&overrides.HistoryCount, "history-count", 0, "pipelines shown in the history chart")
	f.StringVar(&overrides.HistoryMetric, "history-metric", "", "history bar length: duration or tests")

	_ = syncCmd.RegisterFlagCompletionFunc("history-metric", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{string(domain.MetricDuration), string(domain.MetricTests)}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(syncCmd)
}

// loadConfig applies command line overrides on top of the file and
// environment, then validates the result.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(fs, cfgPath)
	if err != nil {
		return cfg, err
	}
	cfg = config.ApplyOverrides(cfg, overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func syncOptions(cfg config.Config) application.SyncOptions {
	return application.SyncOptions{
		HistoryCount:  cfg.Options.HistoryCount,
		HistoryMetric: domain.HistoryMetric(cfg.Options.HistoryMetric),
		HeadingLevel:  cfg.Options.HeadingLevel,
	}
}

func syncRequest() (application.SyncRequest, error) {
	req := application.SyncRequest{
		PipelineID: syncPipelineID,
		ProjectID:  firstNonEmpty(syncProjectID, os.Getenv("PROJECT_ID"), os.Getenv("CI_PROJECT_ID")),
		PageID:     firstNonEmpty(syncPageID, os.Getenv("CONFLUENCE_PAGE_ID")),
		Ref:        firstNonEmpty(syncRef, os.Getenv("CI_COMMIT_REF_NAME")),
		Section:    syncSection,
		DryRun:     syncDryRun,
	}

	if req.PipelineID == 0 {
		if v := os.Getenv("CI_PIPELINE_ID"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return req, fmt.Errorf("CI_PIPELINE_ID: %w", err)
			}
			req.PipelineID = id
		}
	}

	var errs []error
	if req.PipelineID <= 0 {
		errs = append(errs, errors.New("--pipeline-id is required"))
	}
	if req.ProjectID == "" {
		errs = append(errs, errors.New("--project-id is required"))
	}
	if req.PageID == "" {
		errs = append(errs, errors.New("--confluence-page-id is required"))
	}
	return req, errors.Join(errs...)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
