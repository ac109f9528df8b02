package api

import (
	"net/http"
	"strconv"

	"vaulttrust/internal/storage"

	"github.com/gin-gonic/gin"
)

const maxAuditLogLimit = 1000

func (s *Server) listAuditLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(storage.DefaultAuditLogLimit)))
	if err != nil || limit < 1 || limit > maxAuditLogLimit {
		abortWithError(c, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}

	auditLogs, err := s.storage.GetAuditLogs(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "failed to fetch audit logs", err)
		return
	}
	if auditLogs == nil {
		auditLogs = []*storage.AuditLog{}
	}

	c.JSON(http.StatusOK, auditLogs)
}
