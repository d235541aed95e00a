package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
)

type RouterConfig struct {
	APIKey      string
	MaxUploadMB int
	Engine      handlers.FaceEngine
	// Audit is optional; without it /v1/audit is not registered.
	Audit  handlers.AuditReader
	Hub    *ws.Hub
	Checks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	if cfg.MaxUploadMB > 0 {
		r.MaxMultipartMemory = int64(cfg.MaxUploadMB) << 20
	}

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	faceH := handlers.NewFaceHandler(cfg.Engine)
	uploads := v1.Group("", BodyLimit(int64(cfg.MaxUploadMB)<<20))
	uploads.POST("/identities/:id/faces", faceH.Enroll)
	v1.GET("/identities/:id/faces", faceH.List)
	v1.DELETE("/identities/:id/faces", faceH.Revoke)

	verifyH := handlers.NewVerifyHandler(cfg.Engine)
	uploads.POST("/verify", verifyH.Verify)
	v1.GET("/provider", verifyH.Provider)

	if cfg.Audit != nil {
		auditH := handlers.NewAuditHandler(cfg.Audit)
		v1.GET("/audit", auditH.List)
	}

	return r
}
