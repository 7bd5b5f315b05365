package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/balazzarini/svelto-app/api/model"
)

// RunAutoMatch triggers one matching pass over pending transactions.
func (a Api) RunAutoMatch(c *gin.Context) {
	var req model2.RunMatch
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.svelto.RunAutoMatch(c.Request.Context(), tenantID(c), req.IntegrationID, req.TransactionIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCandidates returns the candidate ranking for a transaction.
func (a Api) GetCandidates(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	candidates, err := a.svelto.FindCandidates(c.Request.Context(), tenantID(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "count": len(candidates)})
}

// ResolveCandidate links the operator-picked receivable to the
// transaction.
func (a Api) ResolveCandidate(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	var req model2.ResolveCandidate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateResolveCandidate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.svelto.ResolveCandidate(c.Request.Context(), tenantID(c), id, req.ReceivableID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Dispute resolved"})
}

// SettleTransaction books a matched transaction in the ERP.
func (a Api) SettleTransaction(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	result, err := a.svelto.SettleTransaction(c.Request.Context(), tenantID(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
