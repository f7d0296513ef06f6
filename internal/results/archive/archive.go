package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"k8s-hpa-analyzer/internal/analysis/aggregate"
	"k8s-hpa-analyzer/internal/analysis/models"
)

// ArchiveConfig configuração do arquivo de sweeps
type ArchiveConfig struct {
	Enabled bool   // Habilita o arquivamento
	DBPath  string // Caminho do banco SQLite
	Keep    int    // Sweeps retidos no banco (default: 50)
}

// DefaultArchiveConfig retorna configuração padrão
func DefaultArchiveConfig() *ArchiveConfig {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".k8s-hpa-analyzer", "sweeps.db")

	return &ArchiveConfig{
		Enabled: true,
		DBPath:  dbPath,
		Keep:    50,
	}
}

// Archive guarda tabelas de sweep em SQLite para consulta posterior.
// Cada sweep leva o JSON completo da tabela mais colunas denormalizadas
// por run para consultas de histórico sem desserializar tudo.
type Archive struct {
	config *ArchiveConfig
	db     *sql.DB
}

// NewArchive cria novo arquivo de sweeps
func NewArchive(config *ArchiveConfig) (*Archive, error) {
	if config == nil {
		config = DefaultArchiveConfig()
	}

	if !config.Enabled {
		log.Info().Msg("Archive disabled")
		return &Archive{config: config}, nil
	}

	// Cria diretório se não existir
	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configura connection pool
	db.SetMaxOpenConns(1) // SQLite funciona melhor com 1 conexão
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	a := &Archive{
		config: config,
		db:     db,
	}

	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().
		Str("db_path", config.DBPath).
		Int("keep", config.Keep).
		Msg("Archive initialized")

	return a, nil
}

// initSchema cria tabelas se não existirem
func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sweeps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sweep_id TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		runs_total INTEGER NOT NULL,
		runs_ok INTEGER NOT NULL,
		runs_failed INTEGER NOT NULL,
		config_data TEXT NOT NULL,  -- JSON do SweepConfig usado
		table_data TEXT NOT NULL    -- JSON da Table completa
	);

	CREATE INDEX IF NOT EXISTS idx_sweeps_created
		ON sweeps(created_at DESC);

	-- Colunas denormalizadas por run para histórico entre sweeps
	CREATE TABLE IF NOT EXISTS run_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sweep_id TEXT NOT NULL,
		scenario TEXT NOT NULL,
		label TEXT NOT NULL,
		interval_s INTEGER,
		time_to_scale_up_s REAL,
		time_to_stabilize_s REAL,
		max_replicas REAL,
		overshoot_area REAL,
		pod_seconds REAL,
		tracking_score REAL,
		low_quality INTEGER NOT NULL DEFAULT 0,
		row_data TEXT NOT NULL,

		FOREIGN KEY (sweep_id) REFERENCES sweeps(sweep_id)
	);

	CREATE INDEX IF NOT EXISTS idx_run_metrics_sweep ON run_metrics(sweep_id);
	CREATE INDEX IF NOT EXISTS idx_run_metrics_run ON run_metrics(scenario, label);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := a.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err = a.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value, updated_at)
		VALUES ('schema_version', '1', CURRENT_TIMESTAMP)
	`)

	return err
}

// nullable converte MetricValue para o bind do SQLite: NULL quando a
// métrica não tem valor numérico
func nullable(m models.MetricValue) interface{} {
	if m.IsDefined() {
		return m.Value
	}
	return nil
}

func intervalSeconds(id models.RunIdentity) interface{} {
	if id.Interval > 0 {
		return int64(id.Interval / time.Second)
	}
	return nil
}

// SaveSweep arquiva uma tabela de sweep e retorna o id gerado
func (a *Archive) SaveSweep(table *aggregate.Table, sweepConfig interface{}) (string, error) {
	if !a.config.Enabled || a.db == nil {
		return "", nil
	}

	tableJSON, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("failed to marshal table: %w", err)
	}
	configJSON, err := json.Marshal(sweepConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	sweepID := uuid.New().String()

	tx, err := a.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sweeps (sweep_id, created_at, runs_total, runs_ok, runs_failed, config_data, table_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		sweepID,
		time.Now().UTC(),
		len(table.Rows)+len(table.Failures),
		len(table.Rows),
		len(table.Failures),
		string(configJSON),
		string(tableJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save sweep: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_metrics (
			sweep_id, scenario, label, interval_s,
			time_to_scale_up_s, time_to_stabilize_s, max_replicas,
			overshoot_area, pod_seconds, tracking_score,
			low_quality, row_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range table.Rows {
		rowJSON, err := json.Marshal(row)
		if err != nil {
			log.Warn().
				Err(err).
				Str("run", row.Identity.Name()).
				Msg("Failed to marshal row, skipping")
			continue
		}

		_, err = stmt.Exec(
			sweepID,
			row.Identity.Scenario,
			row.Identity.Label,
			intervalSeconds(row.Identity),
			nullable(row.Metrics.TimeToScaleUp),
			nullable(row.Metrics.TimeToStabilize),
			nullable(row.Metrics.MaxReplicas),
			nullable(row.Metrics.OvershootArea),
			nullable(row.Metrics.PodSeconds),
			nullable(row.TrackingScore),
			row.Metrics.LowQuality,
			string(rowJSON),
		)
		if err != nil {
			log.Warn().
				Err(err).
				Str("run", row.Identity.Name()).
				Msg("Failed to insert run metrics, skipping")
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("sweep_id", sweepID).
		Int("runs", len(table.Rows)).
		Int("failures", len(table.Failures)).
		Msg("Sweep saved to database")

	if err := a.prune(); err != nil {
		log.Warn().Err(err).Msg("Failed to prune old sweeps")
	}

	return sweepID, nil
}

// SweepRecord resumo de um sweep arquivado
type SweepRecord struct {
	SweepID    string    `json:"sweep_id"`
	CreatedAt  time.Time `json:"created_at"`
	RunsTotal  int       `json:"runs_total"`
	RunsOK     int       `json:"runs_ok"`
	RunsFailed int       `json:"runs_failed"`
}

// ListSweeps retorna os sweeps mais recentes (default: 50)
func (a *Archive) ListSweeps(limit int) ([]SweepRecord, error) {
	if !a.config.Enabled || a.db == nil {
		return nil, fmt.Errorf("archive not enabled")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.Query(`
		SELECT sweep_id, created_at, runs_total, runs_ok, runs_failed
		FROM sweeps
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweeps: %w", err)
	}
	defer rows.Close()

	records := make([]SweepRecord, 0)
	for rows.Next() {
		var rec SweepRecord
		if err := rows.Scan(&rec.SweepID, &rec.CreatedAt, &rec.RunsTotal, &rec.RunsOK, &rec.RunsFailed); err != nil {
			log.Warn().Err(err).Msg("Failed to scan sweep record")
			continue
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweeps: %w", err)
	}
	return records, nil
}

// LoadSweep carrega a tabela completa de um sweep arquivado
func (a *Archive) LoadSweep(sweepID string) (*aggregate.Table, error) {
	if !a.config.Enabled || a.db == nil {
		return nil, fmt.Errorf("archive not enabled")
	}

	var data string
	err := a.db.QueryRow(`
		SELECT table_data FROM sweeps WHERE sweep_id = ?
	`, sweepID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sweep not found: %s", sweepID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sweep: %w", err)
	}

	var table aggregate.Table
	if err := json.Unmarshal([]byte(data), &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal table: %w", err)
	}
	return &table, nil
}

// LatestSweep carrega o sweep mais recente
func (a *Archive) LatestSweep() (string, *aggregate.Table, error) {
	if !a.config.Enabled || a.db == nil {
		return "", nil, fmt.Errorf("archive not enabled")
	}

	var sweepID, data string
	err := a.db.QueryRow(`
		SELECT sweep_id, table_data FROM sweeps ORDER BY id DESC LIMIT 1
	`).Scan(&sweepID, &data)
	if err == sql.ErrNoRows {
		return "", nil, fmt.Errorf("no sweeps archived")
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load latest sweep: %w", err)
	}

	var table aggregate.Table
	if err := json.Unmarshal([]byte(data), &table); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal table: %w", err)
	}
	return sweepID, &table, nil
}

// RunHistoryPoint é a evolução de um run entre sweeps arquivados
type RunHistoryPoint struct {
	SweepID         string    `json:"sweep_id"`
	CreatedAt       time.Time `json:"created_at"`
	TimeToScaleUp   *float64  `json:"time_to_scale_up_s,omitempty"`
	TimeToStabilize *float64  `json:"time_to_stabilize_s,omitempty"`
	MaxReplicas     *float64  `json:"max_replicas,omitempty"`
	OvershootArea   *float64  `json:"overshoot_area,omitempty"`
	TrackingScore   *float64  `json:"tracking_score,omitempty"`
	LowQuality      bool      `json:"low_quality,omitempty"`
}

// RunHistory consulta as colunas denormalizadas: como as métricas de um
// run evoluíram nos últimos sweeps (default: 20)
func (a *Archive) RunHistory(scenario, label string, limit int) ([]RunHistoryPoint, error) {
	if !a.config.Enabled || a.db == nil {
		return nil, fmt.Errorf("archive not enabled")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := a.db.Query(`
		SELECT s.sweep_id, s.created_at,
		       r.time_to_scale_up_s, r.time_to_stabilize_s, r.max_replicas,
		       r.overshoot_area, r.tracking_score, r.low_quality
		FROM run_metrics r
		JOIN sweeps s ON s.sweep_id = r.sweep_id
		WHERE r.scenario = ? AND r.label = ?
		ORDER BY s.id DESC
		LIMIT ?
	`, scenario, label, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	points := make([]RunHistoryPoint, 0)
	for rows.Next() {
		var p RunHistoryPoint
		var scaleUp, stabilize, maxReplicas, area, score sql.NullFloat64
		if err := rows.Scan(&p.SweepID, &p.CreatedAt,
			&scaleUp, &stabilize, &maxReplicas, &area, &score, &p.LowQuality); err != nil {
			log.Warn().Err(err).Msg("Failed to scan history point")
			continue
		}
		p.TimeToScaleUp = floatPtr(scaleUp)
		p.TimeToStabilize = floatPtr(stabilize)
		p.MaxReplicas = floatPtr(maxReplicas)
		p.OvershootArea = floatPtr(area)
		p.TrackingScore = floatPtr(score)
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run history: %w", err)
	}
	return points, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// prune remove sweeps além do limite de retenção
func (a *Archive) prune() error {
	if a.config.Keep <= 0 {
		return nil
	}

	if _, err := a.db.Exec(`
		DELETE FROM run_metrics WHERE sweep_id IN (
			SELECT sweep_id FROM sweeps
			WHERE id NOT IN (SELECT id FROM sweeps ORDER BY id DESC LIMIT ?)
		)
	`, a.config.Keep); err != nil {
		return fmt.Errorf("failed to prune run metrics: %w", err)
	}

	result, err := a.db.Exec(`
		DELETE FROM sweeps
		WHERE id NOT IN (SELECT id FROM sweeps ORDER BY id DESC LIMIT ?)
	`, a.config.Keep)
	if err != nil {
		return fmt.Errorf("failed to prune sweeps: %w", err)
	}

	removed, _ := result.RowsAffected()
	if removed > 0 {
		log.Info().
			Int64("removed", removed).
			Int("keep", a.config.Keep).
			Msg("Pruned old sweeps")
	}
	return nil
}

// Stats retorna estatísticas do arquivo
func (a *Archive) Stats() (*ArchiveStats, error) {
	if !a.config.Enabled || a.db == nil {
		return &ArchiveStats{Enabled: false}, nil
	}

	stats := &ArchiveStats{
		Enabled: true,
		DBPath:  a.config.DBPath,
	}

	if err := a.db.QueryRow(`SELECT COUNT(*) FROM sweeps`).Scan(&stats.TotalSweeps); err != nil {
		return nil, fmt.Errorf("failed to count sweeps: %w", err)
	}
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM run_metrics`).Scan(&stats.TotalRuns); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	// SQLite retorna timestamps de expressões como string
	var latest sql.NullString
	err := a.db.QueryRow(`SELECT MAX(created_at) FROM sweeps`).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get latest sweep time: %w", err)
	}
	if latest.Valid {
		if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", latest.String); err == nil {
			stats.LastSweepAt = t
		}
	}

	if fileInfo, err := os.Stat(a.config.DBPath); err == nil {
		stats.DBSize = fileInfo.Size()
	}

	return stats, nil
}

// ArchiveStats estatísticas do arquivo de sweeps
type ArchiveStats struct {
	Enabled     bool      `json:"enabled"`
	DBPath      string    `json:"db_path"`
	DBSize      int64     `json:"db_size"`
	TotalSweeps int64     `json:"total_sweeps"`
	TotalRuns   int64     `json:"total_runs"`
	LastSweepAt time.Time `json:"last_sweep_at,omitempty"`
}

// Close fecha conexão com banco
func (a *Archive) Close() error {
	if a.db != nil {
		log.Info().Msg("Closing database connection")
		return a.db.Close()
	}
	return nil
}
