package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	md := filepath.Join(dir, "aqeeq.md")
	if err := os.WriteFile(md, []byte("# Aqeeq"), 0o600); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "stones.md")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		ev     fsnotify.Event
		wantOK bool
		want   ChangeType
	}{
		{"create md", fsnotify.Event{Name: md, Op: fsnotify.Create}, true, ChangeUpserted},
		{"write md", fsnotify.Event{Name: md, Op: fsnotify.Write}, true, ChangeUpserted},
		{"remove txt", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove}, true, ChangeDeleted},
		{"rename md", fsnotify.Event{Name: md, Op: fsnotify.Rename}, true, ChangeDeleted},
		{"chmod only", fsnotify.Event{Name: md, Op: fsnotify.Chmod}, false, 0},
		{"hidden file", fsnotify.Event{Name: filepath.Join(dir, ".aqeeq.md.swp"), Op: fsnotify.Write}, false, 0},
		{"unsupported ext", fsnotify.Event{Name: filepath.Join(dir, "catalogue.pdf"), Op: fsnotify.Create}, false, 0},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false, 0},
	}
	for _, tc := range cases {
		ch, ok := classify(tc.ev)
		if ok != tc.wantOK {
			t.Errorf("%s: ok = %v, want %v", tc.name, ok, tc.wantOK)
			continue
		}
		if ok && ch.Type != tc.want {
			t.Errorf("%s: type = %v, want %v", tc.name, ch.Type, tc.want)
		}
	}
}

func TestWatcherApply_UpsertThenDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "stones"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "stones", "aqeeq.md")
	if err := os.WriteFile(path, []byte("# Aqeeq Stone Benefits\n\nAqeeq is worn for protection."), 0o600); err != nil {
		t.Fatal(err)
	}

	e := newEngine(t, nil)
	w := NewWatcher(root, e.pipeline, 0, nil)

	w.Apply(ctx, []Change{{Path: path, Type: ChangeUpserted}})
	entries, err := e.store.AllEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("expected chunks after upsert")
	}
	if got := entries[0].Chunk.DocumentID; got != "stones/aqeeq" {
		t.Errorf("DocumentID = %q", got)
	}
	if got := entries[0].Chunk.Metadata.Category; got != "stones" {
		t.Errorf("Category = %q", got)
	}

	// A second write replaces rather than duplicates.
	w.Apply(ctx, []Change{{Path: path, Type: ChangeUpserted}})
	if n, _ := e.store.Count(ctx); n != len(entries) {
		t.Errorf("count after re-ingest = %d, want %d", n, len(entries))
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	w.Apply(ctx, []Change{{Path: path, Type: ChangeDeleted}})
	if n, _ := e.store.Count(ctx); n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}

func TestWatcherApply_IgnoresOutsideRootAndVanishedFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	e := newEngine(t, nil)
	w := NewWatcher(root, e.pipeline, 0, nil)

	w.Apply(ctx, []Change{
		{Path: filepath.Join(filepath.Dir(root), "elsewhere.md"), Type: ChangeUpserted},
		{Path: filepath.Join(root, "never-written.md"), Type: ChangeUpserted},
	})
	if n, _ := e.store.Count(ctx); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}
