package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcherDetectsFeatureChange(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var batches [][]string
	w := NewWatcher([]string{dir}, func(changed []string) {
		mu.Lock()
		batches = append(batches, changed)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "color.feature")
	if err := os.WriteFile(path, []byte("Feature: color\n"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d: %v", len(batches), batches)
	}
	if len(batches[0]) != 1 || batches[0][0] != path {
		t.Errorf("batch = %v, want [%s]", batches[0], path)
	}
}

func TestWatcherBatchesBurst(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var batches [][]string
	w := NewWatcher([]string{dir}, func(changed []string) {
		mu.Lock()
		batches = append(batches, changed)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"a.feature", "b.feature", "pipespec.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(500 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("burst should debounce into 1 batch, got %d: %v", len(batches), batches)
	}
	if len(batches[0]) != 3 {
		t.Errorf("batch = %v, want 3 paths", batches[0])
	}
}

func TestWatcherIgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var count int
	w := NewWatcher([]string{dir}, func(changed []string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"notes.txt", "run.json", "color.feature~", ".#color.feature"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(500 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("irrelevant files triggered %d batches", count)
	}
}

func TestWatcherFileRoot(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pipespec.yaml")
	if err := os.WriteFile(cfgPath, []byte("engine: sim\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var batches [][]string
	w := NewWatcher([]string{cfgPath}, func(changed []string) {
		mu.Lock()
		batches = append(batches, changed)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(cfgPath, []byte("engine: sim\nformat: progress\n"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
}

func TestWatcherContextCancellation(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{dir}, func([]string) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestWatcherMissingRoot(t *testing.T) {
	w := NewWatcher([]string{"/nonexistent/features"}, func([]string) {})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"color.feature", true},
		{"pipespec.yaml", true},
		{"pipespec.yml", true},
		{"features/nested/flow.feature", true},
		{"notes.txt", false},
		{"color.feature~", false},
		{".#color.feature", false},
		{"color.feature.swp", false},
	}
	for _, tt := range tests {
		if got := relevant(tt.path); got != tt.want {
			t.Errorf("relevant(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
