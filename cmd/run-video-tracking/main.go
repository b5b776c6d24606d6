// Package main provides run-video-tracking, the operator CLI that submits one
// video to the tracking workflow and waits for the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/vehicle-tracking-service/internal/config"
	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/temporal"
)

const (
	defaultInput  = "demo.mov"
	defaultServer = "localhost:7233"

	statusPollInterval = 2 * time.Second
)

// errReported marks a failure that has already been printed.
var errReported = errors.New("run failed")

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// trackingClient is the part of the orchestration client the CLI drives.
type trackingClient interface {
	Connect(ctx context.Context, address string) error
	ExecuteWorkflow(ctx context.Context, job domain.JobDescriptor, opts ...temporal.StartOption) (*domain.JobResult, error)
	GetProcessingStatus(ctx context.Context, workflowID string) (string, error)
	Disconnect()
}

type deps struct {
	newClient  func(cfg temporal.ClientConfig, logger zerolog.Logger) trackingClient
	statInput  func(path string) error
	now        func() time.Time
	pollEvery  time.Duration
	spinWriter io.Writer
}

func defaultDeps() deps {
	return deps{
		newClient: func(cfg temporal.ClientConfig, logger zerolog.Logger) trackingClient {
			return temporal.NewOrchestrator(cfg, temporal.WithLogger(logger))
		},
		statInput: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
		now:        time.Now,
		pollEvery:  statusPollInterval,
		spinWriter: os.Stdout,
	}
}

type ui struct {
	title func(a ...interface{}) string
	ok    func(a ...interface{}) string
	info  func(a ...interface{}) string
	warn  func(a ...interface{}) string
	err   func(a ...interface{}) string
	dim   func(a ...interface{}) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

type options struct {
	demo   bool
	input  string
	output string
	model  string
	server string
}

func newRootCmd(d deps) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run-video-tracking [options] [input-video]",
		Short: "Run vehicle tracking and collision detection on a video",
		Long: "Submits a video to the vehicle-tracking workflow, shows live progress " +
			"and prints the processing summary when the job finishes.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.input = args[0]
			}
			return run(cmd, d, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.demo, "demo", false, "use the sensitive collision-detection preset")
	flags.StringVarP(&opts.input, "input", "i", defaultInput, "input video path")
	flags.StringVarP(&opts.output, "output", "o", "", "output path (derived from the input if omitted)")
	flags.StringVarP(&opts.model, "model", "m", domain.DefaultModelPath, "detection model identifier")
	flags.StringVarP(&opts.server, "server", "s", defaultServer, "orchestration server address")

	return cmd
}

func run(cmd *cobra.Command, d deps, opts options) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	ui := newUI()

	cfg, err := config.Load(config.FlagBinding{Key: "temporal.host_port", Flag: cmd.Flags().Lookup("server")})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLoggerWithWriter(observability.LoggingConfig{
		Level:      "warn",
		Format:     "console",
		TimeFormat: time.RFC3339,
	}, errOut)

	if err := d.statInput(opts.input); err != nil {
		return report(errOut, ui, fmt.Errorf("input video not found: %s", opts.input))
	}

	job, err := buildJob(opts)
	if err != nil {
		return report(errOut, ui, err)
	}

	preset := domain.PresetStandard
	if opts.demo {
		preset = domain.PresetDemo
	}
	fmt.Fprintf(out, "%s\n", ui.title("Vehicle Tracking & Collision Detection"))
	fmt.Fprintf(out, "  %s %s\n", ui.dim("input: "), job.InputPath)
	fmt.Fprintf(out, "  %s %s\n", ui.dim("output:"), job.OutputPath)
	fmt.Fprintf(out, "  %s %s\n", ui.dim("model: "), job.ModelPath)
	fmt.Fprintf(out, "  %s %s (confidence=%.2f collision_distance=%.1f overlap=%.2f)\n",
		ui.dim("preset:"), preset.Name,
		job.ConfidenceThreshold, job.CollisionDistanceThreshold, job.OverlapThreshold)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := d.newClient(temporal.ClientConfig{
		HostPort:          cfg.Temporal.HostPort,
		Namespace:         cfg.Temporal.Namespace,
		TaskQueue:         cfg.Temporal.TaskQueue,
		ConnectionTimeout: cfg.Temporal.ConnectionTimeout,
		TLS: &temporal.TLSConfig{
			Enabled:    cfg.Temporal.TLS.Enabled,
			CertPath:   cfg.Temporal.TLS.CertPath,
			KeyPath:    cfg.Temporal.TLS.KeyPath,
			CACertPath: cfg.Temporal.TLS.CACertPath,
			ServerName: cfg.Temporal.TLS.ServerName,
		},
	}, logger)

	if err := client.Connect(ctx, cfg.Temporal.HostPort); err != nil {
		return report(errOut, ui, err)
	}
	defer client.Disconnect()
	fmt.Fprintf(out, "%s connected to %s\n", ui.ok("[OK]"), cfg.Temporal.HostPort)

	workflowID := temporal.NewWorkflowID(d.now())
	fmt.Fprintf(out, "%s workflow %s\n", ui.info("[..]"), workflowID)

	result, err := executeWithProgress(ctx, d, client, job, workflowID)
	if err != nil {
		return report(errOut, ui, err)
	}
	if !result.Success {
		return report(errOut, ui, fmt.Errorf("processing failed: %s", result.ErrorMessage))
	}

	fmt.Fprintf(out, "%s output written to %s\n", ui.ok("[OK]"), result.OutputFile)
	printSummary(out, ui, result.ProcessingSummary)
	return nil
}

// buildJob maps the command options onto a validated descriptor.
func buildJob(opts options) (domain.JobDescriptor, error) {
	jobOpts := []domain.JobOption{domain.WithModelPath(strings.TrimSpace(opts.model))}
	if o := strings.TrimSpace(opts.output); o != "" {
		jobOpts = append(jobOpts, domain.WithOutputPath(o))
	}
	if opts.demo {
		return domain.NewDemoModeRequest(opts.input, jobOpts...)
	}
	return domain.NewStandardModeRequest(opts.input, jobOpts...)
}

// executeWithProgress runs the workflow while a spinner shows its live
// status message.
func executeWithProgress(ctx context.Context, d deps, client trackingClient, job domain.JobDescriptor, workflowID string) (*domain.JobResult, error) {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(d.spinWriter))
	spin.Suffix = " Submitting job..."
	spin.Start()
	defer spin.Stop()

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()

	go func() {
		ticker := time.NewTicker(d.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				status, err := client.GetProcessingStatus(pollCtx, workflowID)
				if err != nil || status == "" {
					continue
				}
				spin.Lock()
				spin.Suffix = " " + status
				spin.Unlock()
			}
		}
	}()

	return client.ExecuteWorkflow(ctx, job, temporal.WithWorkflowID(workflowID))
}

// report prints err and, for lookups that failed, the usual causes.
func report(w io.Writer, ui *ui, err error) error {
	fmt.Fprintf(w, "%s %v\n", ui.err("[ERROR]"), err)
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.warn("Hints:"))
		fmt.Fprintln(w, "  - check that the input video exists and the path is correct")
		fmt.Fprintln(w, "  - check that the orchestration server is running (temporal server start-dev)")
		fmt.Fprintln(w, "  - check that a worker is running and registered on the task queue")
	}
	return errReported
}

func printSummary(w io.Writer, ui *ui, summary *domain.Summary) {
	if summary == nil || summary.Len() == 0 {
		return
	}
	fmt.Fprintln(w, ui.title("Summary"))
	summary.Range(func(key string, v domain.Value) bool {
		fmt.Fprintf(w, "  %s %v\n", ui.dim(key+":"), v.Interface())
		return true
	})
}
