package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notegraph/internal/adapter"
	"notegraph/internal/graph"
	"notegraph/internal/persist"
	"notegraph/internal/tools"
	"notegraph/internal/vault"
	"notegraph/pkg/config"
	"notegraph/pkg/errors"
	"notegraph/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting notegraph server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize store and load the persisted graph
	persister := persist.NewFile(cfg.DataFile)
	store := graph.NewStore(persister, time.Duration(cfg.SaveDebounceMs)*time.Millisecond)

	legacyDiscarded, err := store.Load(context.Background())
	if err != nil {
		log.Fatal("Failed to load graph", zap.Error(err))
	}
	if legacyDiscarded {
		log.Warn("Previous graph used an older schema and was discarded; run a full analysis to rebuild it")
	}

	// Initialize collaborators
	source := vault.NewFSSource(cfg.VaultDir)
	extractor := adapter.NewExtractor(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID)
	analyzer := vault.NewAnalyzer(store, source, extractor)
	executor := tools.NewExecutor(store)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Tool surface for the external orchestration loop
		api.GET("/tools", func(c *gin.Context) {
			c.JSON(http.StatusOK, tools.GetGraphTools())
		})

		api.POST("/tools/execute", func(c *gin.Context) {
			var call tools.Call
			if err := c.ShouldBindJSON(&call); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, executor.Execute(c.Request.Context(), call))
		})

		// Bulk analysis runs in the background; progress lands in the log.
		api.POST("/analyze", func(c *gin.Context) {
			if analyzer.BulkRunning() {
				c.JSON(http.StatusConflict, gin.H{"error": "analysis already running"})
				return
			}
			go func() {
				if _, err := analyzer.AnalyzeAll(context.Background()); err != nil && err != errors.ErrScanInProgress {
					log.Error("Bulk analysis failed", zap.Error(err))
				}
			}()
			c.JSON(http.StatusAccepted, gin.H{"status": "started"})
		})

		api.POST("/analyze/cancel", func(c *gin.Context) {
			if !analyzer.CancelBulk() {
				c.JSON(http.StatusOK, gin.H{"status": "idle"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
		})

		api.POST("/analyze/note", func(c *gin.Context) {
			var req struct {
				Path string `json:"path" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			stats, err := analyzer.AnalyzeNote(c.Request.Context(), req.Path)
			if err != nil {
				log.Error("Note analysis failed", zap.String("note", req.Path), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
				return
			}
			c.JSON(http.StatusOK, stats)
		})

		api.DELETE("/analyze/note", func(c *gin.Context) {
			var req struct {
				Path string `json:"path" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			nodes, edges := analyzer.ForgetNote(c.Request.Context(), req.Path)
			c.JSON(http.StatusOK, gin.H{"nodes_removed": nodes, "edges_removed": edges})
		})

		api.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"nodes":        store.NodeCount(),
				"edges":        store.EdgeCount(),
				"bulk_running": analyzer.BulkRunning(),
			})
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := store.Close(ctx); err != nil {
		log.Error("Final graph flush failed", zap.Error(err))
	}

	log.Info("Server exited")
}

func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
