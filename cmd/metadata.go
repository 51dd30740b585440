package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itsocialist/presentation-library-builder/internal/config"
	"github.com/itsocialist/presentation-library-builder/internal/discover"
	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/metadata"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Writes an editable metadata file for every presentation",
	Long: `The metadata command seeds one sidecar file per presentation in the
metadata folder, prefilled with the title, date, author and tags the build
would use. Existing files are never overwritten, so edits survive reruns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		written, kept, err := writeSidecars(appConfig, fsys.OS{}, logger)
		if err != nil {
			return err
		}
		logger.Info("metadata files ready",
			zap.String("dir", appConfig.MetadataDir),
			zap.Int("written", written),
			zap.Int("unchanged", kept))
		return nil
	},
}

func writeSidecars(cfg config.Config, fs fsys.FS, log *zap.Logger) (written, kept int, err error) {
	if cfg.MetadataDir == "" {
		return 0, 0, errors.New("metadataDir is not configured")
	}
	scanner := discover.Scanner{FS: fs, Root: cfg.PresentationsDir, IgnoreDirs: cfg.IgnoreDirs}
	entries, err := scanner.Documents()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to scan presentations: %w", err)
	}

	extractor := &metadata.Extractor{FS: fs, MetadataDir: cfg.MetadataDir, DefaultAuthor: cfg.DefaultAuthor}
	for _, e := range entries {
		rec, err := extractor.Extract(e.AbsPath, e.RelPath)
		if err != nil {
			return written, kept, err
		}
		ok, err := extractor.WriteSidecar(rec)
		if err != nil {
			return written, kept, err
		}
		if ok {
			log.Info("created", zap.String("file", extractor.SidecarPath(rec.ID())))
			written++
		} else {
			log.Debug("exists, skipped", zap.String("file", extractor.SidecarPath(rec.ID())))
			kept++
		}
	}
	return written, kept, nil
}

func init() {
	rootCmd.AddCommand(metadataCmd)
}
