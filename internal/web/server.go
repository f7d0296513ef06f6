package web

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"k8s-hpa-analyzer/internal/results/archive"
	"k8s-hpa-analyzer/internal/web/handlers"
	"k8s-hpa-analyzer/internal/web/middleware"
)

// Server representa o servidor HTTP de consulta aos sweeps arquivados
type Server struct {
	router   *gin.Engine
	archive  *archive.Archive
	port     int
	token    string
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// NewServer cria uma nova instância do servidor web
func NewServer(arch *archive.Archive, port int, debug bool) (*Server, error) {
	if arch == nil {
		return nil, fmt.Errorf("archive é obrigatório para o servidor web")
	}

	// Token de autenticação (opcional para POC)
	token := os.Getenv("K8S_HPA_ANALYZER_WEB_TOKEN")
	if token == "" {
		token = "poc-token-123" // Token padrão para POC
		fmt.Println("⚠️  Usando token padrão para POC: poc-token-123")
		fmt.Println("💡 Para produção, defina K8S_HPA_ANALYZER_WEB_TOKEN")
	}

	// Setup Gin
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	// gin.New() ao invés de gin.Default() para controle manual dos middlewares
	router := gin.New()

	server := &Server{
		router:   router,
		archive:  arch,
		port:     port,
		token:    token,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hpa_analyzer",
				Name:      "http_requests_total",
				Help:      "Requisições HTTP atendidas pela API.",
			},
			[]string{"method", "path", "status"},
		),
	}

	server.setupMiddleware()
	server.setupMetrics()
	server.setupRoutes()

	return server, nil
}

// setupMiddleware configura os middlewares do servidor
func (s *Server) setupMiddleware() {
	// CORS - permitir todas as origens para POC
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Logging padrão do Gin (console)
	s.router.Use(gin.Logger())

	// Recovery
	s.router.Use(gin.Recovery())

	// Contador de requisições por rota/status
	s.router.Use(func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.requests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	})
}

// setupMetrics registra os coletores expostos em /metrics. O registry é
// próprio do servidor para que instâncias independentes não conflitem.
func (s *Server) setupMetrics() {
	s.registry.MustRegister(s.requests)

	stats := func() *archive.ArchiveStats {
		st, err := s.archive.Stats()
		if err != nil {
			return &archive.ArchiveStats{}
		}
		return st
	}

	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "hpa_analyzer",
			Name:      "archived_sweeps",
			Help:      "Número de sweeps guardados no archive.",
		},
		func() float64 { return float64(stats().TotalSweeps) },
	))

	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "hpa_analyzer",
			Name:      "archived_runs",
			Help:      "Número de linhas de run guardadas no archive.",
		},
		func() float64 { return float64(stats().TotalRuns) },
	))

	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "hpa_analyzer",
			Name:      "archive_db_size_bytes",
			Help:      "Tamanho do banco SQLite do archive em bytes.",
		},
		func() float64 { return float64(stats().DBSize) },
	))
}

// setupRoutes configura as rotas da API
func (s *Server) setupRoutes() {
	// Health check (sem auth)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": "1.0.0",
			"mode":    "web",
		})
	})

	// Métricas Prometheus (sem auth, scrapers não enviam Bearer)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// API v1 (com auth)
	api := s.router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(s.token))

	// Sweeps arquivados
	sweepsHandler := handlers.NewSweepsHandler(s.archive)
	api.GET("/sweeps", sweepsHandler.ListSweeps)
	api.GET("/sweeps/latest", sweepsHandler.GetLatestSweep)
	api.GET("/sweeps/:id", sweepsHandler.GetSweep)
	api.GET("/sweeps/:id/csv", sweepsHandler.DownloadCSV)

	// Histórico de um run ao longo dos sweeps
	api.GET("/runs/history", sweepsHandler.GetRunHistory)

	// Estatísticas do arquivo
	api.GET("/stats", sweepsHandler.GetStats)

	// Raiz lista os endpoints (não há frontend embutido)
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service": "k8s-hpa-analyzer",
			"endpoints": []string{
				"GET /health",
				"GET /metrics",
				"GET /api/v1/sweeps",
				"GET /api/v1/sweeps/latest",
				"GET /api/v1/sweeps/:id",
				"GET /api/v1/sweeps/:id/csv",
				"GET /api/v1/runs/history?scenario=&label=",
				"GET /api/v1/stats",
			},
		})
	})
}

// Start inicia o servidor HTTP
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║        k8s-hpa-analyzer - Sweep Archive API               ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Printf("\n")
	fmt.Printf("🌐 Server URL:    http://localhost%s\n", addr)
	fmt.Printf("📍 API Endpoint:  http://localhost%s/api/v1\n", addr)
	fmt.Printf("🔐 Auth Token:    %s\n", s.token)
	fmt.Printf("❤️  Health Check: http://localhost%s/health\n", addr)
	fmt.Printf("📊 Prometheus:    http://localhost%s/metrics\n", addr)
	fmt.Printf("\n")
	fmt.Println("📝 Exemplo de uso:")
	fmt.Printf("   curl -H 'Authorization: Bearer %s' http://localhost%s/api/v1/sweeps\n", s.token, addr)
	fmt.Printf("\n")
	fmt.Println("🚀 Servidor iniciado! Pressione Ctrl+C para parar.")
	fmt.Printf("\n")

	return s.router.Run(addr)
}

// Shutdown encerra gracefully o servidor e fecha o archive
func (s *Server) Shutdown() error {
	fmt.Println("\n╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║              GRACEFUL SHUTDOWN INICIADO                   ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")

	if err := s.archive.Close(); err != nil {
		fmt.Printf("⚠️  Erro ao fechar archive: %v\n", err)
		return err
	}
	fmt.Println("✓ Archive fechado")

	fmt.Println("\n✅ Shutdown concluído com sucesso!")
	return nil
}
