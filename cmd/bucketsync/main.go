package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/bucketsync/internal/utils"
	"github.com/openmined/bucketsync/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "bucketsync",
	Short:   "Sync local folders with S3 compatible buckets",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addRootFlags(rootCmd)
}

func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "bucketsync config file")
	cmd.PersistentFlags().StringP("profile", "p", "", "profile id or name")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging on stderr")
}

func main() {
	verbose := false
	for _, arg := range os.Args[1:] {
		if arg == "-v" || arg == "--verbose" {
			verbose = true
		}
	}

	closeLog, err := setupLogging(defaultLogDir, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red.Render("ERROR"), err)
		os.Exit(1)
	}
	defer closeLog()

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red.Render("ERROR"), err)
		closeLog()
		os.Exit(1)
	}
}

// setupLogging sends logs to stdout via tint and, at debug level, to a per launch file
// under logDir.
func setupLogging(logDir string, verbose bool) (func(), error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("bucketsync-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	stdoutLevel := slog.LevelWarn
	if verbose {
		stdoutLevel = slog.LevelDebug
	}
	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      stdoutLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps the time
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	closed := false
	return func() {
		if closed {
			return
		}
		closed = true
		logInterceptor.Close()
		file.Close()
	}, nil
}
