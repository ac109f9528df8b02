package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"vaulttrust/internal/blockchain"
	"vaulttrust/internal/logger"
	"vaulttrust/internal/notify"
	"vaulttrust/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const SubmissionVerifiedAction = "SUBMISSION_VERIFIED"

type verifySubmissionRequest struct {
	AuditorAddress string `json:"auditorAddress"`
}

func (s *Server) listSubmissions(c *gin.Context) {
	ctx := c.Request.Context()

	var submissions []*storage.Submission
	var err error
	if userAddress := c.Query("userAddress"); userAddress != "" {
		normalized, ok := blockchain.NormalizeAddress(userAddress)
		if !ok {
			abortWithError(c, http.StatusBadRequest, "invalid userAddress")
			return
		}
		submissions, err = s.storage.GetSubmissionsByUser(ctx, normalized)
	} else {
		submissions, err = s.storage.GetAllSubmissions(ctx)
	}
	if err != nil {
		internalError(c, "failed to fetch submissions", err)
		return
	}
	if submissions == nil {
		submissions = []*storage.Submission{}
	}

	c.JSON(http.StatusOK, submissions)
}

func (s *Server) getSubmission(c *gin.Context) {
	submission, err := s.storage.GetSubmission(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		internalError(c, "failed to fetch submission", err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

func (s *Server) verifySubmission(c *gin.Context) {
	var request verifySubmissionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	auditor, ok := blockchain.NormalizeAddress(request.AuditorAddress)
	if !ok {
		abortWithError(c, http.StatusBadRequest, "valid auditorAddress required")
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	err := s.storage.UpdateSubmissionVerification(ctx, id, auditor, time.Now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		internalError(c, "failed to verify submission", err)
		return
	}

	submission, err := s.storage.GetSubmission(ctx, id)
	if err != nil {
		internalError(c, "failed to fetch submission", err)
		return
	}

	details, _ := json.Marshal(map[string]any{
		"submissionId": submission.ID,
		"reserveId":    submission.ReserveID,
	})
	s.audit(c, SubmissionVerifiedAction, auditor, submission.UserAddress, string(details))

	c.JSON(http.StatusOK, submission)
}

// audit never fails the request; the state change already happened.
func (s *Server) audit(c *gin.Context, action string, performedBy string, target string, details string) {
	auditLog := &storage.AuditLog{
		Action:        action,
		PerformedBy:   performedBy,
		TargetAddress: &target,
		Details:       &details,
	}

	ctx := c.Request.Context()
	if err := s.storage.CreateAuditLog(ctx, auditLog); err != nil {
		logger.Error("cannot write audit log", zap.String("action", action), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, notify.FromAuditLog(auditLog)); err != nil {
		s.metrics.PublishFailure.Inc()
		logger.Warn("cannot publish audit event", zap.String("action", action), zap.Error(err))
	}
}
