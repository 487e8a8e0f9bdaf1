package trust

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Options controls a FileRepository. Changes are ignored after the
// repository is created.
type Options struct {
	// Debounce is how long to wait after the last file event before
	// reloading, so that a burst of writes triggers a single reload.
	Debounce time.Duration

	// Logger to use for reload messages. Defaults to slog.Default().
	Logger *slog.Logger

	// OnReload, if set, is called after every reload attempt triggered by a
	// file event, with the number of trust anchors now in use.
	OnReload func(ctx context.Context, trusted int, err error)
}

type snapshot struct {
	trusted       []*x509.Certificate
	intermediates []*x509.Certificate
}

// FileRepository is a Repository backed by certificate files on disk. It
// can watch its paths and reload them when they change; the previous
// certificates stay in use when a reload fails.
type FileRepository struct {
	options           Options
	rootsPath         string
	intermediatesPath string

	current  atomic.Pointer[snapshot]
	debounce *debouncer

	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	reloadTotalCounter metric.Int64Counter
	reloadErrorCounter metric.Int64Counter
}

var _ Repository = (*FileRepository)(nil)

// NewFileRepository loads the trust anchors at rootsPath and the optional
// intermediates at intermediatesPath (files or directories) and starts
// watching both. Call Watch to process file events, or Close to release the
// watcher without watching.
func NewFileRepository(rootsPath, intermediatesPath string, options Options) (*FileRepository, error) {
	d := options.Debounce
	if d < 10*time.Millisecond {
		d = 100 * time.Millisecond
	}
	r := &FileRepository{
		options:           options,
		rootsPath:         rootsPath,
		intermediatesPath: intermediatesPath,
		debounce:          newDebouncer(d),
		logger:            options.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	meter := otel.Meter("github.com/remiblancher/ocspcheck/internal/trust")
	var err error
	r.reloadTotalCounter, err = meter.Int64Counter("ocspcheck.trust.reloads")
	if err != nil {
		return nil, fmt.Errorf("trust: failed to create otel meter: %w", err)
	}
	r.reloadErrorCounter, err = meter.Int64Counter("ocspcheck.trust.reload.errors")
	if err != nil {
		return nil, fmt.Errorf("trust: failed to create otel meter: %w", err)
	}

	ctx := context.Background()
	if _, err := r.Reload(ctx); err != nil {
		return nil, err
	}

	r.fsWatcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("trust: failed to create fswatcher: %w", err)
	}
	for _, p := range []string{rootsPath, intermediatesPath} {
		if p == "" {
			continue
		}
		if err := r.fsWatcher.Add(p); err != nil {
			_ = r.fsWatcher.Close()
			return nil, fmt.Errorf("trust: failed to watch %s: %w", p, err)
		}
	}
	return r, nil
}

func (r *FileRepository) TrustedCertificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), r.current.Load().trusted...)
}

func (r *FileRepository) IntermediateCertificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), r.current.Load().intermediates...)
}

// Reload reads both paths again and swaps in the new certificates. It
// returns the number of trust anchors loaded. On error nothing is swapped.
func (r *FileRepository) Reload(ctx context.Context) (int, error) {
	r.reloadTotalCounter.Add(ctx, 1)

	trusted, err := LoadCertificates(r.rootsPath)
	if err == nil && len(trusted) == 0 {
		err = fmt.Errorf("%w in %s", ErrNoCertificates, r.rootsPath)
	}
	if err != nil {
		r.reloadErrorCounter.Add(ctx, 1)
		return 0, fmt.Errorf("trust: failed to load trust anchors: %w", err)
	}
	intermediates, err := LoadCertificates(r.intermediatesPath)
	if err != nil {
		r.reloadErrorCounter.Add(ctx, 1)
		return 0, fmt.Errorf("trust: failed to load intermediates: %w", err)
	}

	fields := []slog.Attr{
		slog.String("roots_path", r.rootsPath),
		slog.Int("trusted", len(trusted)),
		slog.Int("intermediates", len(intermediates)),
	}
	now := time.Now()
	for _, c := range trusted {
		if now.After(c.NotAfter) {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "trust anchor has expired",
				slog.String("subject", c.Subject.String()),
				slog.String("not_after", c.NotAfter.Format(time.DateTime)))
		}
	}

	next := &snapshot{trusted: trusted, intermediates: intermediates}
	if prev := r.current.Swap(next); prev == nil {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "trust store loaded", fields...)
	} else {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "trust store reloaded", fields...)
	}
	return len(trusted), nil
}

// Watch processes file events until ctx is cancelled, reloading the
// repository after changes. It closes the underlying watcher on return.
func (r *FileRepository) Watch(ctx context.Context) error {
	defer r.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-r.fsWatcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(ctx, event)
		case err, ok := <-r.fsWatcher.Errors:
			if !ok {
				return nil
			}
			r.logger.LogAttrs(ctx, slog.LevelError, "an error occurred while watching trust store", slog.Any("err", err))
		}
	}
}

// Close stops watching. Certificates already loaded remain available.
func (r *FileRepository) Close() error {
	r.debounce.stop()
	err := r.fsWatcher.Close()
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}

func (r *FileRepository) handleEvent(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
	case event.Op.Has(fsnotify.Write):
	case event.Op.Has(fsnotify.Remove):
	case event.Op.Has(fsnotify.Rename):
	default:
		return
	}

	// A watched file that is replaced by rename or delete-and-create must
	// be watched again.
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		if event.Name == r.rootsPath || event.Name == r.intermediatesPath {
			if err := r.fsWatcher.Add(event.Name); err != nil {
				r.logger.LogAttrs(ctx, slog.LevelWarn, "failed to re-watch file",
					slog.String("path", event.Name), slog.Any("err", err))
			}
		}
	}

	r.debounce.add(func() {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "reloading trust store...", slog.String("trigger", event.Name))
		trusted, err := r.Reload(ctx)
		if err != nil {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to reload trust store", slog.Any("err", err))
		}
		if r.options.OnReload != nil {
			r.options.OnReload(ctx, trusted, err)
		}
	})
}
