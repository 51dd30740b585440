package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itsocialist/presentation-library-builder/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Builds the library page from the presentations folder",
	Long: `The build command unpacks zip bundles, scans the presentations folder,
extracts metadata, copies every document into the output folder, generates
thumbnails and writes index.html and viewer.html.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context())
	},
}

func runBuild(ctx context.Context) error {
	res, err := pipeline.New(appConfig, logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if len(res.Skipped) > 0 {
		logger.Warn("some documents were skipped", zap.Strings("documents", res.Skipped))
	}
	if res.AccessCode != "" {
		logger.Info("access code page written", zap.String("path", appConfig.AccessGate.CodePage))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
