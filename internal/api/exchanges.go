package api

import (
	"errors"
	"net/http"

	"vaulttrust/internal/exchange"
	"vaulttrust/internal/storage"

	"github.com/gin-gonic/gin"
)

type registerExchangeRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
}

type verifyExchangeRequest struct {
	WalletAddress string `json:"walletAddress"`
	Code          string `json:"code"`
}

type exchangeSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress"`
	Verified      bool   `json:"verified"`
}

type registerExchangeResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	TestModeCode string          `json:"testModeCode"`
	Exchange     exchangeSummary `json:"exchange"`
}

func exchangeStatus(err error) int {
	switch {
	case errors.Is(err, exchange.ErrMissingFields),
		errors.Is(err, exchange.ErrSignatureRequired),
		errors.Is(err, exchange.ErrInvalidWalletAddress),
		errors.Is(err, exchange.ErrCodeRequired),
		errors.Is(err, exchange.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, exchange.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, exchange.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrWalletRegistered),
		errors.Is(err, exchange.ErrEmailRegistered):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) exchangeError(c *gin.Context, err error, fallback string) {
	status := exchangeStatus(err)
	if status == http.StatusInternalServerError {
		internalError(c, fallback, err)
		return
	}
	abortWithError(c, status, err.Error())
}

func (s *Server) registerExchange(c *gin.Context) {
	var request registerExchangeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	registration, err := s.exchanges.Register(c.Request.Context(), exchange.RegisterRequest{
		Name:          request.Name,
		Email:         request.Email,
		WalletAddress: request.WalletAddress,
		Signature:     request.Signature,
		Message:       request.Message,
	})
	if err != nil {
		s.exchangeError(c, err, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, registerExchangeResponse{
		Success:      true,
		Message:      "Exchange registered. Use the code to verify your account.",
		TestModeCode: registration.Code,
		Exchange: exchangeSummary{
			ID:            registration.Exchange.ID,
			Name:          registration.Exchange.Name,
			Email:         registration.Exchange.Email,
			WalletAddress: registration.Exchange.WalletAddress,
			Verified:      registration.Exchange.Verified,
		},
	})
}

func (s *Server) verifyExchange(c *gin.Context) {
	var request verifyExchangeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.exchanges.Verify(c.Request.Context(), request.WalletAddress, request.Code); err != nil {
		s.exchangeError(c, err, "verification failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Exchange verified successfully"})
}

func (s *Server) getExchange(c *gin.Context) {
	found, err := s.exchanges.Get(c.Request.Context(), c.Param("walletAddress"))
	if err != nil {
		s.exchangeError(c, err, "failed to fetch exchange")
		return
	}

	c.JSON(http.StatusOK, found)
}

func (s *Server) listExchanges(c *gin.Context) {
	exchanges, err := s.exchanges.List(c.Request.Context())
	if err != nil {
		internalError(c, "failed to fetch exchanges", err)
		return
	}
	if exchanges == nil {
		exchanges = []*storage.Exchange{}
	}

	c.JSON(http.StatusOK, exchanges)
}
