package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// ChangeType classifies a knowledge base file event.
type ChangeType int

const (
	// ChangeUpserted means the file was created or written.
	ChangeUpserted ChangeType = iota
	// ChangeDeleted means the file was removed or renamed away.
	ChangeDeleted
)

// Change is one pending file change.
type Change struct {
	Path string
	Type ChangeType
}

// classify maps a raw event to a Change. Directory, hidden, unsupported
// and chmod-only events are dropped.
func classify(ev fsnotify.Event) (Change, bool) {
	if !IsKnowledgeFile(ev.Name) {
		return Change{}, false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return Change{Path: ev.Name, Type: ChangeDeleted}, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return Change{}, false
		}
		return Change{Path: ev.Name, Type: ChangeUpserted}, true
	default:
		return Change{}, false
	}
}

// Watcher re-ingests knowledge base files as they change on disk. Events
// are debounced so an editor's burst of writes triggers one ingest.
type Watcher struct {
	root     string
	pipeline *Pipeline
	debounce time.Duration
	log      *slog.Logger
}

// NewWatcher returns a Watcher for root feeding pipeline.
func NewWatcher(root string, pipeline *Pipeline, debounce time.Duration, log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{root: root, pipeline: pipeline, debounce: debounce, log: log}
}

// Run watches root and every subdirectory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingestion: create watcher: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, w.root); err != nil {
		return err
	}
	w.log.Info("ingestion: watching knowledge base", slog.String("dir", w.root))

	pending := map[string]ChangeType{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(fw, ev.Name); err != nil {
						w.log.Warn("ingestion: watch new directory", slog.String("dir", ev.Name), slog.Any("error", err))
					}
					continue
				}
			}
			if ch, ok := classify(ev); ok {
				pending[ch.Path] = ch.Type
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("ingestion: watcher error", slog.Any("error", err))

		case <-timer.C:
			changes := make([]Change, 0, len(pending))
			for p, t := range pending {
				changes = append(changes, Change{Path: p, Type: t})
			}
			clear(pending)
			w.Apply(ctx, changes)
		}
	}
}

// Apply ingests or removes the documents behind changes. Failures are
// logged per file so one bad file does not block the rest.
func (w *Watcher) Apply(ctx context.Context, changes []Change) {
	for _, ch := range changes {
		rel, err := filepath.Rel(w.root, ch.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		log := w.log.With(slog.String("path", rel))

		if ch.Type == ChangeDeleted {
			n, err := w.pipeline.Remove(ctx, DocumentID(rel))
			if err != nil {
				log.Error("ingestion: remove failed", slog.Any("error", err))
				continue
			}
			log.Info("ingestion: removed document", slog.Int("chunks", n))
			continue
		}

		doc, err := LoadFile(w.root, ch.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			log.Error("ingestion: load failed", slog.Any("error", err))
			continue
		}
		st, err := w.pipeline.Ingest(ctx, []rag.Document{doc}, nil)
		if err != nil {
			log.Error("ingestion: ingest failed", slog.Any("error", err))
			continue
		}
		log.Info("ingestion: re-ingested document", slog.Int("chunks", st.Chunks), slog.Int("replaced", st.Removed))
	}
}

func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("ingestion: watch %s: %w", path, err)
		}
		return nil
	})
}
