package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/balazzarini/svelto-app/api/model"
)

// CreateIntegration registers a provider connection. Credentials never
// come back in the response.
func (a Api) CreateIntegration(c *gin.Context) {
	var req model2.CreateIntegration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateIntegration(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	itg, err := a.svelto.CreateIntegration(c.Request.Context(), tenantID(c), req.ToParams())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, itg)
}

// GetIntegrations lists the tenant's active provider connections.
func (a Api) GetIntegrations(c *gin.Context) {
	itgs, err := a.svelto.GetIntegrations(c.Request.Context(), tenantID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": itgs, "count": len(itgs)})
}

// SyncIntegration runs one integration's sync pass on demand.
func (a Api) SyncIntegration(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	result, err := a.svelto.SyncIntegration(c.Request.Context(), tenantID(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncAllIntegrations runs a sync pass over every active integration.
func (a Api) SyncAllIntegrations(c *gin.Context) {
	results, err := a.svelto.SyncAllIntegrations(c.Request.Context(), tenantID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
