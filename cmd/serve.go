package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const debounceDuration = 500 * time.Millisecond

var (
	serverPort  int
	openBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the library locally and rebuilds on changes",
	Long: `The serve command performs an initial build, then serves the output folder
on localhost. The presentations and metadata folders are watched and the
library is rebuilt after changes settle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	logger.Info("performing initial build")
	if err := runBuild(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, root := range []string{appConfig.PresentationsDir, appConfig.MetadataDir} {
		if root == "" {
			continue
		}
		if _, err := os.Stat(root); err != nil {
			logger.Info("directory not found, not watching", zap.String("dir", root))
			continue
		}
		watchTree(watcher, root)
	}

	var mu sync.Mutex
	rebuild := func() {
		mu.Lock()
		defer mu.Unlock()
		logger.Info("rebuilding after changes")
		if err := runBuild(ctx); err != nil {
			logger.Error("rebuild failed", zap.Error(err))
		}
	}
	go watchLoop(ctx, watcher, rebuild)

	srv := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", serverPort),
		Handler:           noCacheHandler(appConfig.OutputDir),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	url := "http://" + srv.Addr + "/"
	logger.Info("serving library", zap.String("dir", appConfig.OutputDir), zap.String("url", url))
	logger.Info("press Ctrl+C to stop the server")
	if openBrowser {
		if err := browser.OpenURL(url); err != nil {
			logger.Warn("failed to open browser", zap.Error(err))
		}
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// watchLoop debounces relevant events into calls to rebuild.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, rebuild func()) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			logger.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				watchTree(watcher, event.Name)
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDuration, rebuild)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// relevant filters out chmod noise and the unpacker's scratch folders.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(event.Name), "/") {
		if strings.HasPrefix(part, ".") && strings.HasSuffix(part, ".unpack") {
			return false
		}
	}
	return true
}

func watchTree(watcher *fsnotify.Watcher, root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("error walking directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			if watchErr := watcher.Add(path); watchErr != nil {
				logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(watchErr))
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("error setting up watches", zap.String("dir", root), zap.Error(err))
	}
}

// noCacheHandler serves dir without directory listings or client caching.
func noCacheHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") && r.URL.Path != "/" {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(r.URL.Path), "index.html")); err != nil {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		files.ServeHTTP(w, r)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func init() {
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "port to serve the library on")
	serveCmd.Flags().BoolVar(&openBrowser, "open", false, "open the library in the default browser")
	rootCmd.AddCommand(serveCmd)
}
