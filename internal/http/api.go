package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"deepfake-detector/internal/domain"
	"deepfake-detector/internal/metrics"
	"deepfake-detector/internal/service"
	"deepfake-detector/internal/upload"
)

// DetectionService is the part of the pipeline the handlers use.
type DetectionService interface {
	Handle(ctx context.Context, token string, kind domain.Kind, f upload.FileUpload) (*domain.Detection, error)
	Get(ctx context.Context, userID int64, id string) (*domain.Detection, error)
	List(ctx context.Context, userID int64) ([]domain.Detection, error)
	Delete(ctx context.Context, userID int64, id string) error
	OpenFile(ctx context.Context, userID int64, id string) (*service.FileContent, error)
}

// StatsService aggregates a user's detections.
type StatsService interface {
	Stats(ctx context.Context, userID int64) (domain.Stats, error)
	Recent(ctx context.Context, userID int64, limit int) ([]domain.Detection, error)
}

// HealthChecker probes a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options configures a Handler.
type Options struct {
	Users       service.UserService
	Detections  DetectionService
	Stats       StatsService
	Inference   HealthChecker
	Metrics     *metrics.Metrics
	Logger      logrus.FieldLogger
	FrontendURL string
	// UploadDir is served under PublicPrefix.
	UploadDir    string
	PublicPrefix string
	MaxUpload    int64
	RecentLimit  int
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users       service.UserService
	detections  DetectionService
	stats       StatsService
	inference   HealthChecker
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
	frontendURL string
	uploadDir   string
	publicURL   string
	maxUpload   int64
	recentLimit int
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxUpload := opts.MaxUpload
	if maxUpload <= 0 {
		maxUpload = upload.DefaultMaxBytes
	}
	publicURL := opts.PublicPrefix
	if publicURL == "" {
		publicURL = "/uploads"
	}
	return &Handler{
		users:       opts.Users,
		detections:  opts.Detections,
		stats:       opts.Stats,
		inference:   opts.Inference,
		metrics:     opts.Metrics,
		logger:      logger,
		frontendURL: opts.FrontendURL,
		uploadDir:   opts.UploadDir,
		publicURL:   "/" + strings.Trim(publicURL, "/"),
		maxUpload:   maxUpload,
		recentLimit: opts.RecentLimit,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.corsMiddleware())
	if h.metrics != nil {
		router.Use(h.metrics.GinMiddleware())
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	if h.uploadDir != "" {
		router.Static(h.publicURL, h.uploadDir)
	}

	api := router.Group("/api")
	{
		api.GET("/health", h.health)

		authGroup := api.Group("/auth")
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.GET("/user", h.requireAuth(), h.currentUser)

		detection := api.Group("/detection", h.requireAuth())
		detection.POST("/:type", h.analyze)
		detection.GET("/file/:id", h.detectionFile)

		history := api.Group("/history", h.requireAuth())
		history.GET("", h.listHistory)
		history.GET("/:id", h.getHistory)
		history.DELETE("/:id", h.deleteHistory)

		user := api.Group("/user", h.requireAuth())
		user.GET("/profile", h.profile)
		user.PUT("/profile", h.updateProfile)
		user.GET("/stats", h.userStats)
	}
}

// Routes lists the registered routes for the startup log.
func Routes(router *gin.Engine) []string {
	var out []string
	for _, r := range router.Routes() {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}

func (h *Handler) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (h.frontendURL == "*" || strings.EqualFold(origin, h.frontendURL)) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	resp := gin.H{"status": "ok", "inference": "ok"}
	if h.inference != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := h.inference.Health(ctx); err != nil {
			h.logger.WithError(err).Warn("inference health check failed")
			resp["status"] = "degraded"
			resp["inference"] = "unavailable"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// drain discards what is left of a request body so keep-alive connections
// can be reused after an early rejection.
func drain(r io.Reader, limit int64) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, limit))
}
