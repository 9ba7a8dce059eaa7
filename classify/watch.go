package classify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads the tables file into c whenever it changes on disk, until ctx
// is cancelled. The parent directory is watched so editors that replace the
// file atomically are picked up. A file that fails to compile is logged and
// the previous tables stay in place.
func Watch(ctx context.Context, path string, c *Classifier) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reload(abs, c)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Errorf("keyword tables watcher error: %v", err)
			}
		}
	}()
	return nil
}

func reload(path string, c *Classifier) {
	t, err := LoadTables(path)
	if err != nil {
		logrus.Errorf("keeping keyword tables %s: %v", c.Tables().Version(), err)
		return
	}
	previous := c.Tables().Version()
	c.SetTables(t)
	logrus.Infof("keyword tables reloaded: %s -> %s", previous, t.Version())
}
