package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s-hpa-analyzer/internal/results/archive"
)

// SweepsHandler gerencia endpoints de consulta ao arquivo de sweeps
type SweepsHandler struct {
	archive *archive.Archive
}

// NewSweepsHandler cria um novo handler
func NewSweepsHandler(arch *archive.Archive) *SweepsHandler {
	return &SweepsHandler{
		archive: arch,
	}
}

// ListSweeps retorna os sweeps arquivados, do mais recente ao mais antigo
// GET /api/v1/sweeps?limit=20
func (h *SweepsHandler) ListSweeps(c *gin.Context) {
	records, err := h.archive.ListSweeps(parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sweeps": records,
		"count":  len(records),
	})
}

// GetSweep retorna a tabela completa de um sweep arquivado
// GET /api/v1/sweeps/:id
func (h *SweepsHandler) GetSweep(c *gin.Context) {
	id := c.Param("id")

	table, err := h.archive.LoadSweep(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Sweep not found: %s", id)})
		return
	}

	c.JSON(http.StatusOK, table)
}

// GetLatestSweep retorna a tabela do sweep mais recente
// GET /api/v1/sweeps/latest
func (h *SweepsHandler) GetLatestSweep(c *gin.Context) {
	sweepID, table, err := h.archive.LatestSweep()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sweep_id": sweepID,
		"table":    table,
	})
}

// DownloadCSV exporta a tabela de um sweep no mesmo formato do
// summary_table.csv gerado pelo comando analyze
// GET /api/v1/sweeps/:id/csv
func (h *SweepsHandler) DownloadCSV(c *gin.Context) {
	id := c.Param("id")

	table, err := h.archive.LoadSweep(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Sweep not found: %s", id)})
		return
	}

	// Monta o CSV em memória antes de enviar para não quebrar a resposta
	// no meio do streaming
	var buf bytes.Buffer
	if err := table.WriteCSVTo(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("sweep_%s.csv", id)))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// GetRunHistory retorna a evolução de um run ao longo dos sweeps arquivados
// GET /api/v1/runs/history?scenario=pcm-cpu&label=60s&limit=20
func (h *SweepsHandler) GetRunHistory(c *gin.Context) {
	scenario := c.Query("scenario")
	label := c.Query("label")

	if scenario == "" || label == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario and label query parameters are required"})
		return
	}

	points, err := h.archive.RunHistory(scenario, label, parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scenario": scenario,
		"label":    label,
		"points":   points,
		"count":    len(points),
	})
}

// GetStats retorna estatísticas do arquivo de sweeps
// GET /api/v1/stats
func (h *SweepsHandler) GetStats(c *gin.Context) {
	stats, err := h.archive.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// parseLimit lê o parâmetro limit da query string; zero delega o
// default para o archive
func parseLimit(c *gin.Context) int {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return 0
	}
	n, err := strconv.Atoi(limitStr)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
