package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configura o logger global para uso em terminal. verbose habilita
// o nível debug, em que os componentes do pipeline logam detalhes por run.
func Setup(verbose bool) {
	zerolog.SetGlobalLevel(level(verbose))
	log.Logger = log.Output(consoleWriter())
}

// SetupWithFile configura o logger para terminal e espelha as entradas
// em um arquivo datado dentro de dir (um arquivo por dia). Retorna o
// handle do arquivo para fechamento no fim da execução.
func SetupWithFile(verbose bool, dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("erro ao criar diretório de logs: %w", err)
	}

	name := fmt.Sprintf("k8s-hpa-analyzer_%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(dir, name)

	// Append: execuções do mesmo dia compartilham o arquivo
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir arquivo de log: %w", err)
	}

	zerolog.SetGlobalLevel(level(verbose))
	log.Logger = log.Output(zerolog.MultiLevelWriter(consoleWriter(), file))

	return file, nil
}

func level(verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
}
