package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"vaulttrust/internal/blockchain"
	"vaulttrust/internal/storage"

	"github.com/gin-gonic/gin"
)

type createProofRequest struct {
	SubmissionID   string `json:"submissionId" binding:"required"`
	ProofType      string `json:"proofType" binding:"required,max=50"`
	ProofData      string `json:"proofData" binding:"required"`
	AuditorAddress string `json:"auditorAddress" binding:"required"`
}

type updateProofStatusRequest struct {
	Status string `json:"status" binding:"required,max=20"`
}

func (s *Server) listProofs(c *gin.Context) {
	submissionID := c.Query("submissionId")
	if submissionID == "" {
		abortWithError(c, http.StatusBadRequest, "submissionId required")
		return
	}

	proofs, err := s.storage.GetProofsBySubmission(c.Request.Context(), submissionID)
	if err != nil {
		internalError(c, "failed to fetch proofs", err)
		return
	}
	if proofs == nil {
		proofs = []*storage.Proof{}
	}

	c.JSON(http.StatusOK, proofs)
}

func (s *Server) getProof(c *gin.Context) {
	proof, err := s.storage.GetProof(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "proof not found")
		return
	}
	if err != nil {
		internalError(c, "failed to fetch proof", err)
		return
	}

	c.JSON(http.StatusOK, proof)
}

func (s *Server) createProof(c *gin.Context) {
	var request createProofRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "submissionId, proofType, proofData and auditorAddress required")
		return
	}

	auditor, ok := blockchain.NormalizeAddress(request.AuditorAddress)
	if !ok {
		abortWithError(c, http.StatusBadRequest, "invalid auditorAddress")
		return
	}

	ctx := c.Request.Context()
	_, err := s.storage.GetSubmission(ctx, request.SubmissionID)
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		internalError(c, "failed to fetch submission", err)
		return
	}

	proof := &storage.Proof{
		SubmissionID:   request.SubmissionID,
		ProofType:      request.ProofType,
		ProofData:      request.ProofData,
		AuditorAddress: auditor,
	}
	if err := s.storage.CreateProof(ctx, proof); err != nil {
		internalError(c, "failed to create proof", err)
		return
	}

	c.JSON(http.StatusCreated, proof)
}

func (s *Server) updateProofStatus(c *gin.Context) {
	var request updateProofStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "status required")
		return
	}

	status := strings.ToLower(strings.TrimSpace(request.Status))
	if status == "" {
		abortWithError(c, http.StatusBadRequest, "status required")
		return
	}

	var completedAt *time.Time
	if status == storage.ProofStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	err := s.storage.UpdateProofStatus(ctx, id, status, completedAt)
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "proof not found")
		return
	}
	if err != nil {
		internalError(c, "failed to update proof", err)
		return
	}

	proof, err := s.storage.GetProof(ctx, id)
	if err != nil {
		internalError(c, "failed to fetch proof", err)
		return
	}

	c.JSON(http.StatusOK, proof)
}
