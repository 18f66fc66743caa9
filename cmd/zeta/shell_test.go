package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/766974616c79/zeta/pkg/common/log"
	"github.com/766974616c79/zeta/pkg/config"
)

func newTestShell(t *testing.T, root string) (*shell, *bytes.Buffer) {
	t.Helper()

	cfg := config.NewDefaultConfig(root)
	cfg.SyncOnSave = false

	var out bytes.Buffer
	sh := newShell(cfg, log.NewNopLogger(), nil, &out)
	if err := sh.open(root); err != nil {
		t.Fatalf("failed to open shell database: %v", err)
	}
	t.Cleanup(sh.close)
	return sh, &out
}

func run(t *testing.T, sh *shell, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	if !sh.execute(line) {
		t.Fatalf("%q unexpectedly ended the shell", line)
	}
	return out.String()
}

func TestShellCommands(t *testing.T) {
	sh, out := newTestShell(t, t.TempDir())

	tests := []struct {
		line string
		want []string
	}{
		{"INSERT the quick fox", []string{"Record inserted"}},
		{"insert the lazy dog", []string{"Record inserted"}},
		{"QUERY fox", []string{"the quick fox\n", "1 results"}},
		{"QUERY the", []string{"the quick fox\nthe lazy dog\n", "2 results"}},
		{"MATCH the dog", []string{"[0:1] the lazy dog\n", "1 results"}},
		{"QUERY cat", []string{"0 results"}},
		{"INSERT", []string{"Error: INSERT requires a text argument"}},
		{"DROP x", []string{"Unknown command: DROP"}},
		{".frobnicate", []string{"Unknown command: .frobnicate"}},
		{".help", []string{"MATCH words"}},
		{".blocks", []string{"block 0: resident, 2 records"}},
		{".stats", []string{"Database Statistics:", "2 inserts"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := run(t, sh, out, tt.line)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("%q output %q does not contain %q", tt.line, got, want)
				}
			}
		})
	}
}

func TestShellSaveAndOpen(t *testing.T) {
	root := t.TempDir()
	sh, out := newTestShell(t, root)

	run(t, sh, out, "INSERT the quick fox")
	run(t, sh, out, "INSERT the lazy dog")
	if got := run(t, sh, out, ".save"); !strings.Contains(got, "Saved 1 blocks") {
		t.Fatalf("unexpected save output %q", got)
	}

	other := t.TempDir()
	if got := run(t, sh, out, ".open "+other); !strings.Contains(got, "(0 blocks)") {
		t.Fatalf("expected an empty database, got %q", got)
	}
	if got := run(t, sh, out, "QUERY fox"); !strings.Contains(got, "0 results") {
		t.Errorf("expected no results in the new database, got %q", got)
	}

	if got := run(t, sh, out, ".open "+root); !strings.Contains(got, "(1 blocks)") {
		t.Fatalf("expected the saved database, got %q", got)
	}
	if got := run(t, sh, out, ".blocks"); !strings.Contains(got, "block 0: cold") {
		t.Errorf("expected a cold block after open, got %q", got)
	}
	if got := run(t, sh, out, "QUERY fox"); !strings.Contains(got, "the quick fox\n") {
		t.Errorf("expected the saved record, got %q", got)
	}
	if got := run(t, sh, out, ".blocks"); !strings.Contains(got, "block 0: resident, 2 records") {
		t.Errorf("expected the block to be resident after the query, got %q", got)
	}
}

func TestShellLoadDiscardsUnsaved(t *testing.T) {
	sh, out := newTestShell(t, t.TempDir())

	run(t, sh, out, "INSERT kept")
	run(t, sh, out, ".save")
	run(t, sh, out, "INSERT dropped")

	if got := run(t, sh, out, ".load"); !strings.Contains(got, "Loaded 1 blocks") {
		t.Fatalf("unexpected load output %q", got)
	}
	if got := run(t, sh, out, "QUERY dropped"); !strings.Contains(got, "0 results") {
		t.Errorf("expected the unsaved record to be gone, got %q", got)
	}
}

func TestShellExit(t *testing.T) {
	sh, out := newTestShell(t, t.TempDir())

	if sh.execute(".exit") {
		t.Fatal("expected .exit to end the shell")
	}
	if !strings.Contains(out.String(), "Goodbye!") {
		t.Errorf("unexpected exit output %q", out.String())
	}
	if got := run(t, sh, out, "QUERY x"); !strings.Contains(got, "No database open") {
		t.Errorf("expected commands to fail after exit, got %q", got)
	}
}

func TestImportLines(t *testing.T) {
	root := t.TempDir()
	sh, out := newTestShell(t, root)

	input := "red fish\nblue fish\n\none fish\n"
	if err := importLines(sh, strings.NewReader(input)); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out.String(), "Imported 3 records into 1 blocks") {
		t.Errorf("unexpected import output %q", out.String())
	}

	fresh, freshOut := newTestShell(t, root)
	if got := run(t, fresh, freshOut, "QUERY fish"); !strings.Contains(got, "3 results") {
		t.Errorf("expected imported records to be saved, got %q", got)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("ZETA_CODEC", "")
	t.Setenv("ZETA_ROOT", "")

	cfg, err := loadConfig(options{Root: "/tmp/db", Codec: "zstd"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Root != "/tmp/db" || cfg.Codec != "zstd" {
		t.Errorf("flags not applied: root=%q codec=%q", cfg.Root, cfg.Codec)
	}

	if _, err := loadConfig(options{Codec: "brotli"}); err == nil {
		t.Error("expected an unknown codec to be rejected")
	}
}
