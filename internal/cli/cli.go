// ============================================================================
// ingestflow CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra based front end for submitting id lists and tracking jobs
//
// Command Structure:
//   ingestflow                     # Root command
//   ├── validate                   # Check an id list without submitting
//   │   └── --ids                 # Inline list (stdin when omitted)
//   ├── submit                     # Validate and POST /ingest
//   │   ├── --ids, -i             # Inline list
//   │   ├── --file, -f            # Read list from file
//   │   ├── --priority, -p        # HIGH, MEDIUM or LOW
//   │   └── --watch               # Keep polling after submit
//   ├── status <ingestion-id>      # One-shot GET /status/{id}
//   ├── watch <ingestion-id>       # Poll every interval until done
//   │   ├── --exit-on-complete    # Stop when the job reports COMPLETED
//   │   └── --interval            # Override poller.interval
//   ├── --config, -c               # Config file (default configs/default.yaml)
//   ├── --api                      # Override api.base_url
//   └── --version
//
// Identifier Input:
//   Either a JSON array or a comma separated list:
//     ingestflow submit --ids '[1, 2, 3]' -p high
//     ingestflow submit --ids '1,2,3' -p low
//   All violations are printed together; nothing is sent while any remain.
//
// watch Command:
//   1. Load config and fetch the job once (watch needs a loaded job)
//   2. Start Metrics HTTP server (if enabled)
//   3. Enable periodic polling and print every settled view
//   4. Stop on completion (--exit-on-complete) or SIGINT / SIGTERM
//
// Error Handling:
//   - Config load failed: return detailed error information
//   - Validation failed: print every message, exit non-zero
//   - Job not found / backend errors: printed, watch keeps polling
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/client"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/metrics"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/poller"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/submission"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	apiOverride string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ingestflow",
		Short: "ingestflow: submit id batches and track their ingestion",
		Long: `ingestflow talks to the ingestion backend:
- Validates identifier lists (JSON array or comma separated)
- Submits them with a priority
- Tracks per-batch progress, optionally polling until done`,
		Version:      "1.0.0",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&apiOverride, "api", "", "backend base URL (overrides api.base_url)")

	rootCmd.AddCommand(buildValidateCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildWatchCommand())

	return rootCmd
}

// ----------------------------------------------------------------------------
// validate
// ----------------------------------------------------------------------------

func buildValidateCommand() *cobra.Command {
	var ids string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an identifier list without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readIdentifiers(cmd.InOrStdin(), ids, "")
			if err != nil {
				return err
			}

			result := submission.Validate(text)
			renderValidation(cmd.OutOrStdout(), result)
			if !result.Valid() {
				return fmt.Errorf("%d validation error(s)", len(result.Violations))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ids, "ids", "", "identifiers as JSON array or comma separated list (stdin when empty)")

	return cmd
}

// ----------------------------------------------------------------------------
// submit
// ----------------------------------------------------------------------------

func buildSubmitCommand() *cobra.Command {
	var ids, idFile, priority string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Validate identifiers and submit them for ingestion",
		Long:  "Validate the identifier list, then POST it to /ingest with the chosen priority. Use --watch to keep tracking the new job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ids != "" && idFile != "" {
				return fmt.Errorf("use either --ids or --file, not both")
			}
			text, err := readIdentifiers(cmd.InOrStdin(), ids, idFile)
			if err != nil {
				return err
			}

			req, result, err := submission.NewRequest(text, priority)
			if !result.Valid() {
				renderValidation(cmd.OutOrStdout(), result)
				return fmt.Errorf("%d validation error(s)", len(result.Violations))
			}
			if err != nil {
				return err
			}

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			c := newClient(cfg, logger, nil)
			handle, err := c.Submit(ctx, *req)
			if err != nil {
				return fmt.Errorf("submission failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Submitted %d IDs with priority %s\n", len(req.IDs), req.Priority)
			fmt.Fprintf(cmd.OutOrStdout(), "   Ingestion ID: %s\n", handle)

			if !watch {
				return nil
			}
			return runWatch(ctx, cmd.OutOrStdout(), cfg, logger, handle, true)
		},
	}

	cmd.Flags().StringVarP(&ids, "ids", "i", "", "identifiers as JSON array or comma separated list")
	cmd.Flags().StringVarP(&idFile, "file", "f", "", "file containing the identifier list")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority: HIGH, MEDIUM or LOW")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep polling the job until it completes")
	// 只在旗標不存在時出錯，上面已定義
	_ = cmd.MarkFlagRequired("priority")

	return cmd
}

// ----------------------------------------------------------------------------
// status
// ----------------------------------------------------------------------------

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <ingestion-id>",
		Short: "Show the current status of an ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			p := poller.New(newClient(cfg, logger, nil), poller.WithLogger(logger))
			defer p.Close()

			if err := p.SetHandle(types.JobHandle(args[0])); err != nil {
				return err
			}
			fetchErr := p.Fetch(ctx)
			renderView(cmd.OutOrStdout(), p.View())
			return fetchErr
		},
	}

	return cmd
}

// ----------------------------------------------------------------------------
// watch
// ----------------------------------------------------------------------------

func buildWatchCommand() *cobra.Command {
	var exitOnComplete bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <ingestion-id>",
		Short: "Poll an ingestion job periodically",
		Long:  "Fetch the job once, then poll GET /status/{id} every interval until it completes or the process is interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.Poller.Interval = interval
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			return runWatch(ctx, cmd.OutOrStdout(), cfg, logger, types.JobHandle(args[0]), exitOnComplete)
		},
	}

	cmd.Flags().BoolVar(&exitOnComplete, "exit-on-complete", true, "stop once the backend reports the job as COMPLETED")
	cmd.Flags().DurationVar(&interval, "interval", 0, "polling interval (overrides poller.interval)")

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, cfg *Config, logger *slog.Logger, handle types.JobHandle, exitOnComplete bool) error {
	collector := metrics.NewCollector(prometheus.NewRegistry())

	p := poller.New(
		newClient(cfg, logger, collector),
		poller.WithInterval(cfg.Poller.Interval),
		poller.WithLogger(logger),
		poller.WithRecorder(collector),
	)
	defer p.Close()

	var srvErr <-chan error
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Port, collector.Handler())
		logger.Info("starting metrics server", "addr", srv.Addr())
		srvErr = srv.Start()
		defer func() {
			if err := srv.Shutdown(5 * time.Second); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}()
	}

	if err := p.SetHandle(handle); err != nil {
		return err
	}
	if err := p.Fetch(ctx); err != nil {
		renderView(out, p.View())
		return err
	}

	// 回調在 poller 的 goroutine 中執行，只做輸出與通知
	// Subscribe 會立即以當前 view 回調一次
	done := make(chan struct{})
	var once sync.Once
	var outMu sync.Mutex
	var lastRendered time.Time
	unsubscribe := p.Subscribe(func(v poller.View) {
		if v.State != poller.StateLoaded && v.State != poller.StateErrored {
			return
		}
		outMu.Lock()
		// watch 開關也會觸發通知，同一份狀態只輸出一次
		if v.Err != nil || !v.LastUpdated.Equal(lastRendered) {
			lastRendered = v.LastUpdated
			renderView(out, v)
		}
		outMu.Unlock()
		if exitOnComplete && v.Status.IsComplete() {
			once.Do(func() { close(done) })
		}
	})
	defer unsubscribe()

	select {
	case <-done:
		return nil
	default:
	}

	if err := p.SetWatch(true); err != nil {
		return err
	}
	logger.Info("watching job", "ingestion_id", handle, "interval", p.Interval())

	select {
	case <-done:
		logger.Info("job completed", "ingestion_id", handle)
	case <-ctx.Done():
		logger.Info("received shutdown signal, stopping watch")
	case err, ok := <-srvErr:
		if ok && err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
	}

	return nil
}

// ----------------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------------

// setup resolves the config and installs the logger as slog default
func setup(cmd *cobra.Command) (*Config, *slog.Logger, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	logger.Debug("config loaded", "path", configFile, "api", cfg.API.BaseURL)
	return cfg, logger, nil
}

func newClient(cfg *Config, logger *slog.Logger, recorder client.Recorder) *client.Client {
	opts := []client.Option{
		client.WithTimeout(cfg.API.Timeout),
		client.WithRateLimit(cfg.API.RateLimit),
		client.WithLogger(logger),
	}
	if recorder != nil {
		opts = append(opts, client.WithRecorder(recorder))
	}
	return client.New(cfg.API.BaseURL, opts...)
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// readIdentifiers returns the inline list, the file content, or stdin
func readIdentifiers(stdin io.Reader, inline, path string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read id file: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
