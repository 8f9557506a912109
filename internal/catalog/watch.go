package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce batches bursts of writes from editors into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever its seed file changes, until ctx is
// done. The parent directory is watched so that atomic replace-by-rename
// saves are seen. Reload failures are logged and the previous snapshot stays.
// onReload, when set, runs after each attempt with its error.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration, onReload func(error)) error {
	if c.path == "" {
		<-ctx.Done()
		return nil
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(c.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}
	log.Info().Str("path", target).Msg("watching catalog")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("catalog watcher error")

		case <-timer.C:
			err := c.Reload()
			if err != nil {
				log.Error().Err(err).Str("path", target).Msg("catalog reload failed; keeping previous catalog")
			} else {
				log.Info().Int("products", len(c.All())).Msg("catalog reloaded")
			}
			if onReload != nil {
				onReload(err)
			}
		}
	}
}
