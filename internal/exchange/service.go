package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"

	"vaulttrust/internal/blockchain"
	"vaulttrust/internal/logger"
	"vaulttrust/internal/notify"
	"vaulttrust/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	RegisteredAction = "EXCHANGE_REGISTERED"
	VerifiedAction   = "EXCHANGE_VERIFIED"
)

var (
	ErrMissingFields        = errors.New("name and email are required")
	ErrSignatureRequired    = errors.New("signature and message are required to prove wallet ownership")
	ErrInvalidWalletAddress = errors.New("invalid wallet address")
	ErrInvalidSignature     = errors.New("invalid signature, wallet ownership verification failed")
	ErrWalletRegistered     = errors.New("exchange already registered with this wallet")
	ErrEmailRegistered      = errors.New("email already registered")
	ErrCodeRequired         = errors.New("walletAddress and code required")
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrNotFound             = errors.New("exchange not found")
)

type RegisterRequest struct {
	Name          string
	Email         string
	WalletAddress string
	Signature     string
	Message       string
}

type Registration struct {
	Exchange *storage.Exchange
	// Code is handed back to the caller while email delivery is not wired.
	Code string
}

type Service struct {
	storage   storage.Storage
	publisher notify.Publisher
	newCode   func() string
}

func NewService(storage storage.Storage, publisher notify.Publisher) *Service {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &Service{
		storage:   storage,
		publisher: publisher,
		newCode:   generateCode,
	}
}

// generateCode returns a six digit code. It is not meant to be unguessable.
func generateCode() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

func (s *Service) Register(ctx context.Context, request RegisterRequest) (*Registration, error) {
	if strings.TrimSpace(request.Name) == "" || strings.TrimSpace(request.Email) == "" {
		return nil, ErrMissingFields
	}
	if request.Signature == "" || request.Message == "" {
		return nil, ErrSignatureRequired
	}

	walletAddress, ok := blockchain.NormalizeAddress(request.WalletAddress)
	if !ok {
		return nil, ErrInvalidWalletAddress
	}

	valid, err := blockchain.VerifyPersonalSignature(common.HexToAddress(walletAddress), request.Message, request.Signature)
	if err != nil || !valid {
		logger.Debug("register exchange: signature rejected", zap.String("wallet", walletAddress), zap.Error(err))
		return nil, ErrInvalidSignature
	}

	_, err = s.storage.GetExchangeByWallet(ctx, walletAddress)
	if err == nil {
		return nil, ErrWalletRegistered
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	email := normalizeEmail(request.Email)
	_, err = s.storage.GetExchangeByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailRegistered
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	code := s.newCode()
	exchange := &storage.Exchange{
		Name:             strings.TrimSpace(request.Name),
		Email:            email,
		WalletAddress:    walletAddress,
		VerificationCode: &code,
	}

	err = s.storage.CreateExchange(ctx, exchange)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, s.duplicateCause(ctx, walletAddress)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("register exchange: exchange registered", zap.String("id", exchange.ID), zap.String("wallet", walletAddress))
	s.audit(ctx, RegisteredAction, walletAddress, map[string]string{
		"exchangeId": exchange.ID,
		"name":       exchange.Name,
		"email":      exchange.Email,
	})

	return &Registration{Exchange: exchange, Code: code}, nil
}

// Verify marks the exchange verified when code equals the stored code
// byte for byte. The code is consumed on success.
func (s *Service) Verify(ctx context.Context, walletAddress string, code string) error {
	if walletAddress == "" || code == "" {
		return ErrCodeRequired
	}

	normalized, ok := blockchain.NormalizeAddress(walletAddress)
	if !ok {
		return ErrInvalidCode
	}

	verified, err := s.storage.VerifyExchange(ctx, normalized, code)
	if err != nil {
		return err
	}
	if !verified {
		logger.Debug("verify exchange: code mismatch", zap.String("wallet", normalized))
		return ErrInvalidCode
	}

	logger.Info("verify exchange: exchange verified", zap.String("wallet", normalized))
	s.audit(ctx, VerifiedAction, normalized, nil)
	return nil
}

func (s *Service) Get(ctx context.Context, walletAddress string) (*storage.Exchange, error) {
	normalized, ok := blockchain.NormalizeAddress(walletAddress)
	if !ok {
		return nil, ErrNotFound
	}

	exchange, err := s.storage.GetExchangeByWallet(ctx, normalized)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return exchange, nil
}

func (s *Service) List(ctx context.Context) ([]*storage.Exchange, error) {
	return s.storage.GetAllExchanges(ctx)
}

// duplicateCause tells which unique field lost a concurrent registration race.
func (s *Service) duplicateCause(ctx context.Context, walletAddress string) error {
	if _, err := s.storage.GetExchangeByWallet(ctx, walletAddress); err == nil {
		return ErrWalletRegistered
	}
	return ErrEmailRegistered
}

func (s *Service) audit(ctx context.Context, action string, walletAddress string, details map[string]string) {
	auditLog := &storage.AuditLog{
		Action:        action,
		PerformedBy:   walletAddress,
		TargetAddress: &walletAddress,
	}
	if details != nil {
		encoded, err := json.Marshal(details)
		if err == nil {
			detailsJSON := string(encoded)
			auditLog.Details = &detailsJSON
		}
	}

	if err := s.storage.CreateAuditLog(ctx, auditLog); err != nil {
		logger.Error("cannot write audit log", zap.String("action", action), zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, notify.FromAuditLog(auditLog)); err != nil {
		logger.Warn("cannot publish audit event", zap.String("action", action), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
