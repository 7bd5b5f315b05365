package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	svelto "github.com/balazzarini/svelto-app"
	"github.com/balazzarini/svelto-app/api/middleware"
	"github.com/balazzarini/svelto-app/config"
	"github.com/balazzarini/svelto-app/internal/apierror"
)

type Api struct {
	svelto *svelto.Svelto
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/integrations", a.CreateIntegration)
	router.GET("/integrations", a.GetIntegrations)
	router.POST("/integrations/:id/sync", a.SyncIntegration)
	router.POST("/sync", a.SyncAllIntegrations)

	router.POST("/matching/run", a.RunAutoMatch)

	router.GET("/transactions", a.ListTransactions)
	router.GET("/transactions/:id", a.GetTransaction)
	router.GET("/transactions/:id/candidates", a.GetCandidates)
	router.POST("/transactions/:id/resolve", a.ResolveCandidate)
	router.POST("/transactions/:id/unmatch", a.UnmatchTransaction)
	router.POST("/transactions/:id/settle", a.SettleTransaction)

	router.POST("/operations/ignore", a.IgnoreTransactions)
	router.POST("/operations/restore", a.RestoreTransactions)

	router.GET("/pending-transactions", a.GetPendingTransactionIDs)
	router.GET("/dashboard", a.GetDashboard)
	return a.router
}

func NewAPI(s *svelto.Svelto) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	r.Use(middleware.TracingMiddleware())
	if conf.Server.SecretKey != "" {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{svelto: s, router: r}
}

// tenantID resolves the tenant from the request header, falling back to
// the configured default tenant for single-tenant deployments.
func tenantID(c *gin.Context) string {
	if tenant := c.GetHeader("X-Tenant-ID"); tenant != "" {
		return tenant
	}
	if conf, err := config.Fetch(); err == nil && conf.DefaultTenant != "" {
		return conf.DefaultTenant
	}
	return "default"
}

func handleError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

func requireParam(c *gin.Context, name string) (string, bool) {
	value := c.Param(name)
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass it in the route"})
		return "", false
	}
	return value, true
}
