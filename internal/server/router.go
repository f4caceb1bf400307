package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/birdscan-backend/internal/pipeline"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/results"
	"github.com/yungbote/birdscan-backend/internal/types"
)

type RouterConfig struct {
	Log       *logger.Logger
	Discovery results.DiscoveryService
	Pipeline  *pipeline.Service
}

// NewRouter builds the polling surface for result discovery. It is a pure
// read API over the store listing; clients re-poll it until the tables they
// expect appear.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:80", "http://localhost:3000", "http://localhost:5174"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/results", listResults(cfg))
		if cfg.Pipeline != nil {
			api.POST("/process", processUpload(cfg))
		}
	}

	return router
}

type processRequest struct {
	Key  string `json:"key" binding:"required"`
	Kind string `json:"kind,omitempty"`
}

// processUpload is the pipeline entry point: the upload stage delivers a
// store key (at-least-once) and the batch runs synchronously. A duplicate
// delivery produces a second distinctly-keyed table, not an error.
func processUpload(cfg RouterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req processRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		kind := types.ArtifactKind(req.Kind)
		if kind == "" {
			inferred, ok := pipeline.InferKind(req.Key)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported upload type"})
				return
			}
			kind = inferred
		}

		res, err := cfg.Pipeline.Process(c.Request.Context(), req.Key, kind)
		if err != nil {
			if pipeline.IsCorruptArchive(err) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			cfg.Log.Error("batch processing failed", "key", req.Key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"batch":       res.Batch,
			"table_key":   res.TableKey,
			"rows":        res.Rows,
			"failed":      res.Failed,
			"total_count": res.TotalCount,
		})
	}
}

func listResults(cfg RouterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			tables []types.DiscoveredTable
			err    error
		)
		switch c.Query("kind") {
		case "":
			tables, err = cfg.Discovery.Discover(c.Request.Context())
		case string(types.TableKindPrimary):
			tables, err = cfg.Discovery.DiscoverKind(c.Request.Context(), types.TableKindPrimary)
		case string(types.TableKindEnhanced):
			tables, err = cfg.Discovery.DiscoverKind(c.Request.Context(), types.TableKindEnhanced)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be primary or enhanced"})
			return
		}
		if err != nil {
			cfg.Log.Error("discovery failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "discovery failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tables": tables})
	}
}
