// Package cmd provides the CLI commands for Synthesis.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/logging"
	"github.com/synthesis-kb/synthesis/internal/profiling"
	"github.com/synthesis-kb/synthesis/pkg/version"
)

// runHooks carries the profiling and debug-logging lifecycle shared by
// every subcommand through the persistent pre/post hooks.
type runHooks struct {
	profileCPU   string
	profileMem   string
	profileTrace string
	debug        bool

	profiler *profiling.Profiler
	cleanups []func()
}

// NewRootCmd creates the root command for the synthesis CLI.
func NewRootCmd() *cobra.Command {
	hooks := &runHooks{profiler: profiling.NewProfiler()}

	cmd := &cobra.Command{
		Use:   "synthesis",
		Short: "Retrieval-augmented knowledge base with hybrid search",
		Long: `Synthesis ingests documentation, articles, and source code into
versioned collections, then answers queries with hybrid BM25 + vector
search, source-quality weighting, and multi-source synthesis.

Run 'synthesis serve' to start the API server, then 'synthesis ingest'
and 'synthesis search' against it.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: func(*cobra.Command, []string) error { return hooks.start() },
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return hooks.stop()
		},
	}

	cmd.SetVersionTemplate("synthesis version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&hooks.profileCPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&hooks.profileMem, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&hooks.profileTrace, "profile-trace", "", "Write execution trace to file")
	pf.BoolVar(&hooks.debug, "debug", false, "Enable debug logging to ~/.synthesis/logs/")

	cmd.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newSearchCmd(),
		newSynthesizeCmd(),
		newCollectionsCmd(),
		newDocumentsCmd(),
		newCostsCmd(),
		newDoctorCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)

	return cmd
}

func (h *runHooks) start() error {
	if h.debug {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		h.cleanups = append(h.cleanups, cleanup)
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()))
	}

	if h.profileCPU != "" {
		stop, err := h.profiler.StartCPU(h.profileCPU)
		if err != nil {
			h.stopAll()
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		h.cleanups = append(h.cleanups, stop)
	}

	if h.profileTrace != "" {
		stop, err := h.profiler.StartTrace(h.profileTrace)
		if err != nil {
			h.stopAll()
			return fmt.Errorf("failed to start trace: %w", err)
		}
		h.cleanups = append(h.cleanups, stop)
	}

	return nil
}

// stop flushes profiles and logging. The heap snapshot happens here so
// it reflects the command's end state.
func (h *runHooks) stop() error {
	defer h.stopAll()

	if h.profileMem != "" {
		if err := h.profiler.WriteHeap(h.profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	return nil
}

// stopAll runs cleanups newest-first, mirroring defer order.
func (h *runHooks) stopAll() {
	for i := len(h.cleanups) - 1; i >= 0; i-- {
		h.cleanups[i]()
	}
	h.cleanups = nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
