package hooks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/upkeep-sh/upkeep/internal/common/sysexec"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hooks.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingCatalog(t *testing.T) {
	catalog, err := Load(filepath.Join(t.TempDir(), "hooks.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !catalog.Empty() {
		t.Error("missing catalog should load as empty")
	}
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
[[pre]]
name = "snapshot root"
command = "timeshift --create --comments upkeep"

[[pre]]
name = "stop backups"
command = "systemctl stop borgmatic.timer"

[[post]]
name = "restart backups"
command = "systemctl start borgmatic.timer"
`)

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(catalog.Pre) != 2 || len(catalog.Post) != 1 {
		t.Fatalf("loaded %d pre / %d post hooks, want 2/1", len(catalog.Pre), len(catalog.Post))
	}
	if catalog.Pre[0].Name != "snapshot root" {
		t.Errorf("Pre[0].Name = %q", catalog.Pre[0].Name)
	}
	if !strings.Contains(catalog.Post[0].Command, "systemctl start") {
		t.Errorf("Post[0].Command = %q", catalog.Post[0].Command)
	}
}

func TestLoadMalformedCatalog(t *testing.T) {
	path := writeCatalog(t, "[[pre]\nname = broken")

	if _, err := Load(path); err == nil {
		t.Error("expected parse error for malformed TOML")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			"hook without name",
			"[[pre]]\ncommand = \"true\"\n",
			ErrMissingHookName,
		},
		{
			"hook without command",
			"[[post]]\nname = \"broken\"\n",
			ErrMissingHookCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalog(t, tt.content)
			_, err := Load(path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestShellRunnerExecutes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	var stdout bytes.Buffer
	r := NewShellRunner(&stdout, nil)

	hook := Hook{Name: "pipeline", Command: "echo one two | tr ' ' '\n' | wc -l"}
	if err := r.Run(context.Background(), hook); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "2" {
		t.Errorf("pipeline output = %q, want %q", got, "2")
	}
}

func TestShellRunnerFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	r := NewShellRunner(nil, nil)
	err := r.Run(context.Background(), Hook{Name: "doomed", Command: "exit 9"})
	if err == nil {
		t.Fatal("expected error")
	}

	var cerr *sysexec.CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *sysexec.CommandError", err)
	}
	if cerr.ExitCode != 9 {
		t.Errorf("ExitCode = %d, want 9", cerr.ExitCode)
	}
}

func TestMockRunnerRecordsOrder(t *testing.T) {
	m := &MockRunner{}
	first := Hook{Name: "first", Command: "true"}
	second := Hook{Name: "second", Command: "true"}

	if err := m.Run(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	if len(m.Ran) != 2 || m.Ran[0].Name != "first" || m.Ran[1].Name != "second" {
		t.Errorf("recorded order = %v", m.Ran)
	}
}
