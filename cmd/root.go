package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/itsocialist/presentation-library-builder/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	appConfig config.Config
	logger    = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "preslib",
	Short: "Builds a browsable library page from a folder of presentations",
	Long: `preslib scans the presentations folder for HTML, PDF and PowerPoint files,
unpacks zip bundles, extracts titles and dates, generates thumbnails and writes
a single self-contained index.html (plus a PDF viewer page) to the output
folder, ready for static hosting.

Running preslib without a subcommand performs a build.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initializeConfig(_ *cobra.Command) error {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg, used, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	logger = newLogger(os.Stdout, os.Stderr, level)

	if used != "" {
		logger.Debug("using config file", zap.String("path", used))
	} else {
		logger.Debug("no config file found, using defaults and environment")
	}
	return nil
}

// newLogger writes progress below error level to out and errors to errOut.
func newLogger(out, errOut io.Writer, level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	enc := zapcore.NewConsoleEncoder(encCfg)

	progress := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.ErrorLevel
	})
	failures := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l >= zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(out), progress),
		zapcore.NewCore(enc, zapcore.AddSync(errOut), failures),
	)
	return zap.New(core)
}
