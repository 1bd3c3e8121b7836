package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/lattice/internal/models"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(dir, "lattice.db")
	cfg.Backup.Dir = filepath.Join(dir, "backups")
	return cfg
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := testConfig(t)
	var logs bytes.Buffer

	app, err := newApplication([]Option{WithConfig(src), WithLogOutput(&logs)})
	if err != nil {
		t.Fatal(err)
	}
	st, err := app.open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	root, err := st.ws.Create(ctx, models.NoteInput{Title: "Root", Content: "# Root\n\n- item"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.ws.Create(ctx, models.NoteInput{Title: "Child", ParentID: root.ID}); err != nil {
		t.Fatal(err)
	}
	if err := st.close(app.flushTimeout); err != nil {
		t.Fatal(err)
	}

	path, err := Export(ctx, "", WithConfig(src), WithLogOutput(&logs))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Dir(path) != src.Backup.Dir || !strings.HasSuffix(path, ".json") {
		t.Errorf("export path = %q", path)
	}

	dst := testConfig(t)
	n, err := Import(ctx, path, WithConfig(dst), WithLogOutput(&logs))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d notes, want 2", n)
	}

	var line map[string]any
	first, _, _ := bytes.Cut(logs.Bytes(), []byte("\n"))
	if err := json.Unmarshal(first, &line); err != nil {
		t.Errorf("log output is not JSON: %q", first)
	}
}

func TestImport_MissingFile(t *testing.T) {
	cfg := testConfig(t)
	_, err := Import(context.Background(), filepath.Join(t.TempDir(), "absent.json"), WithConfig(cfg), WithLogOutput(os.Stderr))
	if err == nil {
		t.Fatal("expected error for missing backup")
	}
	if _, statErr := os.Stat(cfg.SQLite.Path); !os.IsNotExist(statErr) {
		t.Error("database should not be created when the backup cannot be read")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}
