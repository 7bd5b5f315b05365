package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/balazzarini/svelto-app/api/model"
	"github.com/balazzarini/svelto-app/internal/apierror"
)

// GetTransaction returns one transaction with its conciliation state.
func (a Api) GetTransaction(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	txn, err := a.svelto.GetTransaction(c.Request.Context(), tenantID(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// ListTransactions pages over the tenant's transactions with optional
// status and integration filters.
func (a Api) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txns, err := a.svelto.ListTransactions(c.Request.Context(), tenantID(c),
		c.Query("status"), c.Query("integration_id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

// GetDashboard returns the aggregated conciliation workload.
func (a Api) GetDashboard(c *gin.Context) {
	dash, err := a.svelto.GetDashboard(c.Request.Context(), tenantID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// GetPendingTransactionIDs lists pending transaction ids, oldest first.
func (a Api) GetPendingTransactionIDs(c *gin.Context) {
	ids, err := a.svelto.GetPendingTransactionIDs(c.Request.Context(), tenantID(c), c.Query("integration_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_ids": ids, "count": len(ids)})
}

// IgnoreTransactions removes a batch of transactions from the matching
// pool.
func (a Api) IgnoreTransactions(c *gin.Context) {
	var req model2.BatchTransactions
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateBatchTransactions(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	affected, err := a.svelto.IgnoreTransactions(c.Request.Context(), tenantID(c), req.TransactionIDs, req.Reason)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error(), "affected": affected})
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected": affected})
}

// RestoreTransactions returns ignored transactions to the pending pool.
func (a Api) RestoreTransactions(c *gin.Context) {
	var req model2.BatchTransactions
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateBatchTransactions(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	affected, err := a.svelto.RestoreTransactions(c.Request.Context(), tenantID(c), req.TransactionIDs)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error(), "affected": affected})
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected": affected})
}

// UnmatchTransaction breaks a receivable link and returns the
// transaction to PENDING.
func (a Api) UnmatchTransaction(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	if err := a.svelto.UnmatchTransaction(c.Request.Context(), tenantID(c), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Transaction returned to pending"})
}
