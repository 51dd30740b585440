// Package pipeline sequences a library build: unpack, discover, extract,
// copy, thumbnail, group, render and write.
package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/itsocialist/presentation-library-builder/internal/catalog"
	"github.com/itsocialist/presentation-library-builder/internal/config"
	"github.com/itsocialist/presentation-library-builder/internal/discover"
	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/metadata"
	"github.com/itsocialist/presentation-library-builder/internal/model"
	"github.com/itsocialist/presentation-library-builder/internal/render"
	"github.com/itsocialist/presentation-library-builder/internal/thumbnail"
	"github.com/itsocialist/presentation-library-builder/internal/unpack"
)

// ErrDocument marks a failure confined to one document. Under the skip
// policy these are logged and counted instead of aborting the run.
var ErrDocument = errors.New("document failed")

// Stage names used to prefix fatal errors.
const (
	StageUnpack    = "unpack"
	StageDiscover  = "discover"
	StageExtract   = "extract"
	StageCopy      = "copy"
	StageThumbnail = "thumbnail"
	StageRender    = "render"
	StageWrite     = "write"
)

// IndexPage is the landing page file name in the output folder.
const IndexPage = "index.html"

// Result summarises a completed run.
type Result struct {
	Documents  int
	Categories int
	Archives   int
	Drafts     int
	// Skipped lists the relative paths dropped under the skip policy.
	Skipped    []string
	Thumbnails map[thumbnail.Source]int
	// AccessCode is the code generated for this build, if any.
	AccessCode string
}

// Pipeline runs one build from Config.
type Pipeline struct {
	Config config.Config
	FS     fsys.FS
	Log    *zap.Logger
	// Renderer captures markup thumbnails; nil means placeholders only.
	// A renderer implementing io.Closer is closed when Run returns.
	Renderer thumbnail.Renderer
	Now      func() time.Time
	// Rand feeds access code generation; nil uses crypto/rand.
	Rand io.Reader
}

// New returns a pipeline on the host filesystem, with a headless browser
// renderer unless thumbnail rendering is disabled.
func New(cfg config.Config, log *zap.Logger) *Pipeline {
	p := &Pipeline{
		Config: cfg,
		FS:     fsys.OS{},
		Log:    log,
		Now:    time.Now,
	}
	if cfg.Thumbnail.Render {
		p.Renderer = thumbnail.NewRodRenderer(thumbnail.RodOptions{
			ViewportWidth:     cfg.Thumbnail.ViewportWidth,
			ViewportHeight:    cfg.Thumbnail.ViewportHeight,
			NavigationTimeout: cfg.Thumbnail.NavigationTimeout,
			SettleDelay:       cfg.Thumbnail.SettleDelay,
			LaunchTimeout:     cfg.Thumbnail.LaunchTimeout,
			Bin:               cfg.Thumbnail.BrowserBin,
		}, log.Named("renderer"))
	}
	return p
}

func (p *Pipeline) publishRoot() string {
	return filepath.Join(p.Config.OutputDir, render.PublishedDir)
}

func (p *Pipeline) thumbnailDir() string {
	return filepath.Join(p.Config.OutputDir, render.ThumbnailDir)
}

func (p *Pipeline) scanner() discover.Scanner {
	return discover.Scanner{FS: p.FS, Root: p.Config.PresentationsDir, IgnoreDirs: p.Config.IgnoreDirs}
}

// Run performs the whole build. Any error other than a skipped document
// aborts the run and is returned wrapped with its stage name.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	if c, ok := p.Renderer.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				p.Log.Warn("failed to close renderer", zap.Error(err))
			}
		}()
	}

	res := Result{Thumbnails: map[thumbnail.Source]int{}}
	cfg := p.Config
	p.Log.Info("starting build",
		zap.String("presentations", cfg.PresentationsDir),
		zap.String("output", cfg.OutputDir))

	if _, err := p.FS.Stat(cfg.PresentationsDir); err != nil {
		return res, fmt.Errorf("%s: presentations directory %q: %w", StageDiscover, cfg.PresentationsDir, err)
	}
	if err := p.prepareOutput(); err != nil {
		return res, fmt.Errorf("%s: %w", StageWrite, err)
	}

	unpacker := &unpack.Unpacker{FS: p.FS, Scanner: p.scanner(), PublishRoot: p.publishRoot(), Log: p.Log.Named("unpack")}
	n, err := unpacker.Unpack(ctx)
	res.Archives = n
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageUnpack, err)
	}

	entries, err := p.scanner().Documents()
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageDiscover, err)
	}
	p.Log.Info("found presentations", zap.Int("count", len(entries)))

	extractor := &metadata.Extractor{FS: p.FS, MetadataDir: cfg.MetadataDir, DefaultAuthor: cfg.DefaultAuthor, Now: p.now}
	generator := &thumbnail.Generator{
		FS:       p.FS,
		Width:    cfg.Thumbnail.Width,
		Height:   cfg.Thumbnail.Height,
		Renderer: p.Renderer,
		Log:      p.Log.Named("thumbnail"),
	}

	var records []*model.DocumentRecord
	copiedAssets := map[string]bool{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rec, err := extractor.Extract(e.AbsPath, e.RelPath)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrDocument, e.RelPath, err)
			if cfg.OnDocumentError == config.OnErrorSkip {
				p.Log.Warn("skipping document", zap.String("document", e.RelPath), zap.Error(err))
				res.Skipped = append(res.Skipped, e.RelPath)
				continue
			}
			return res, fmt.Errorf("%s: %w", StageExtract, err)
		}
		if rec.Draft() {
			p.Log.Info("skipping draft", zap.String("document", e.RelPath))
			res.Drafts++
			continue
		}

		published, err := p.publish(e, copiedAssets)
		if err != nil {
			return res, fmt.Errorf("%s: %s: %w", StageCopy, e.RelPath, err)
		}

		src, err := generator.Generate(ctx, thumbnail.Request{
			Document: e.AbsPath,
			Preview:  published,
			Output:   filepath.Join(p.thumbnailDir(), rec.ThumbnailName()),
			Format:   rec.Format,
		})
		if err != nil {
			return res, fmt.Errorf("%s: %s: %w", StageThumbnail, e.RelPath, err)
		}
		res.Thumbnails[src]++

		p.Log.Info("processed",
			zap.String("document", e.RelPath),
			zap.String("title", rec.Title),
			zap.String("category", rec.Category),
			zap.String("thumbnail", string(src)))
		records = append(records, &rec)
	}

	cat := catalog.Build(records)
	res.Documents = cat.Total()
	res.Categories = cat.CategoryCount()

	codes := append([]string(nil), cfg.AccessGate.Codes...)
	if cfg.AccessGate.Generate {
		code, err := GenerateCode(p.Rand)
		if err != nil {
			return res, fmt.Errorf("%s: access code: %w", StageRender, err)
		}
		res.AccessCode = code
		codes = append(codes, code)
	}

	now := p.now()
	index, err := render.Render(model.RenderContext{
		Catalog:      cat,
		Records:      records,
		SiteTitle:    cfg.SiteTitle,
		AccessCodes:  codes,
		AccessWindow: cfg.AccessGate.Window,
		ThumbWidth:   cfg.Thumbnail.Width,
		ThumbHeight:  cfg.Thumbnail.Height,
		Now:          now,
	})
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageRender, err)
	}
	viewer, err := render.RenderViewer(cfg.SiteTitle)
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageRender, err)
	}

	if err := p.FS.WriteFile(filepath.Join(cfg.OutputDir, IndexPage), []byte(index)); err != nil {
		return res, fmt.Errorf("%s: %w", StageWrite, err)
	}
	if err := p.FS.WriteFile(filepath.Join(cfg.OutputDir, render.ViewerPage), []byte(viewer)); err != nil {
		return res, fmt.Errorf("%s: %w", StageWrite, err)
	}
	if res.AccessCode != "" {
		page, err := render.RenderCodePage(cfg.SiteTitle, res.AccessCode, cfg.AccessGate.Window, now)
		if err != nil {
			return res, fmt.Errorf("%s: %w", StageRender, err)
		}
		if err := p.FS.WriteFile(cfg.AccessGate.CodePage, []byte(page)); err != nil {
			return res, fmt.Errorf("%s: %w", StageWrite, err)
		}
		p.Log.Info("generated access code", zap.String("page", cfg.AccessGate.CodePage))
	}

	p.Log.Info("build complete",
		zap.Int("documents", res.Documents),
		zap.Int("categories", res.Categories),
		zap.Int("skipped", len(res.Skipped)),
		zap.String("index", filepath.Join(cfg.OutputDir, IndexPage)))
	return res, nil
}

// prepareOutput clears the thumbnail folder, which is fully regenerated each
// run. Published documents are overwritten in place since unpacked assets
// only exist under the output tree once their archive is gone.
func (p *Pipeline) prepareOutput() error {
	if err := p.FS.RemoveAll(p.thumbnailDir()); err != nil {
		return fmt.Errorf("failed to clear thumbnails: %w", err)
	}
	for _, dir := range []string{p.Config.OutputDir, p.publishRoot(), p.thumbnailDir()} {
		if err := p.FS.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// publish copies the document into the output tree, together with a
// hand-maintained asset folder beside it, and returns the published path.
func (p *Pipeline) publish(e discover.Entry, copiedAssets map[string]bool) (string, error) {
	dst := filepath.Join(p.publishRoot(), filepath.FromSlash(e.RelPath))
	if err := p.FS.CopyFile(e.AbsPath, dst); err != nil {
		return "", err
	}
	if e.Format != model.FormatHTML {
		return dst, nil
	}

	relDir := path.Dir(e.RelPath)
	if copiedAssets[relDir] {
		return dst, nil
	}
	copiedAssets[relDir] = true
	srcAssets := filepath.Join(filepath.Dir(e.AbsPath), unpack.AssetDirName)
	info, err := p.FS.Stat(srcAssets)
	if err != nil || !info.IsDir() {
		return dst, nil
	}
	p.Log.Debug("copying assets", zap.String("dir", path.Join(relDir, unpack.AssetDirName)))
	if err := p.FS.CopyDir(srcAssets, filepath.Join(filepath.Dir(dst), unpack.AssetDirName)); err != nil {
		return "", fmt.Errorf("failed to copy assets: %w", err)
	}
	return dst, nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// GenerateCode returns a uniformly random four-digit code.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
