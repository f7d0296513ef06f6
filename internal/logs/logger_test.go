package logs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestSetupWithFile(t *testing.T) {
	dir := t.TempDir()

	closer, err := SetupWithFile(false, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	log.Info().Str("componente", "teste").Msg("entrada de verificação")

	matches, err := filepath.Glob(filepath.Join(dir, "k8s-hpa-analyzer_*.log"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one dated log file, got %d", len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "entrada de verificação") {
		t.Error("expected log entry to be mirrored to the file")
	}
}

func TestSetupWithFile_BadDir(t *testing.T) {
	// Arquivo no lugar do diretório de logs
	path := filepath.Join(t.TempDir(), "ocupado")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := SetupWithFile(false, path); err == nil {
		t.Error("expected error when log dir cannot be created")
	}
}
