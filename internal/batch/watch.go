package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is picked up.
const DefaultSettle = 300 * time.Millisecond

// Watch processes leaflet files created in dir until ctx is done. A file is
// handed to the worker pool once it has not been written to for settle, so
// partially copied files are not read. onResult is called from worker
// goroutines.
func (p *Processor) Watch(ctx context.Context, dir string, settle time.Duration, onResult func(FileResult)) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	p.log.Info().Str("dir", dir).Dur("settle", settle).Msg("watching for leaflets")

	fileCh := make(chan string, 256)
	var wg sync.WaitGroup
	for range p.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range fileCh {
				res := p.ProcessFile(ctx, path)
				if res.Err != nil {
					p.progress.OnError(path, res.Err)
				}
				if onResult != nil {
					onResult(res)
				}
			}
		}()
	}
	defer wg.Wait()
	defer close(fileCh)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if p.watchable(ev.Name) {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.Warn().Err(err).Msg("watch error")
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				select {
				case fileCh <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// watchable skips hidden and temporary files as well as anything the
// include/exclude filters reject.
func (p *Processor) watchable(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return ShouldInclude(path, p.cfg.Include, p.cfg.Exclude)
}
