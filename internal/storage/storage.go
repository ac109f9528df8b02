package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const DefaultAuditLogLimit = 100

type Storage interface {
	// submission
	CreateSubmission(ctx context.Context, submission *Submission) error
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	GetSubmissionsByUser(ctx context.Context, userAddress string) ([]*Submission, error)
	GetAllSubmissions(ctx context.Context) ([]*Submission, error)
	UpdateSubmissionVerification(ctx context.Context, id string, verifiedBy string, verifiedAt time.Time) error
	RecordSubmission(ctx context.Context, submission *Submission, auditLog *AuditLog) error

	// proof
	CreateProof(ctx context.Context, proof *Proof) error
	GetProof(ctx context.Context, id string) (*Proof, error)
	GetProofsBySubmission(ctx context.Context, submissionID string) ([]*Proof, error)
	UpdateProofStatus(ctx context.Context, id string, status string, completedAt *time.Time) error

	// audit log
	CreateAuditLog(ctx context.Context, auditLog *AuditLog) error
	GetAuditLogs(ctx context.Context, limit int) ([]*AuditLog, error)

	// exchange
	CreateExchange(ctx context.Context, exchange *Exchange) error
	GetExchangeByWallet(ctx context.Context, walletAddress string) (*Exchange, error)
	GetExchangeByEmail(ctx context.Context, email string) (*Exchange, error)
	VerifyExchange(ctx context.Context, walletAddress string, code string) (bool, error)
	GetAllExchanges(ctx context.Context) ([]*Exchange, error)

	// tracker cursor
	GetTrackerCursor(ctx context.Context, contractAddress string, eventName string) (uint64, bool, error)
	UpdateTrackerCursor(ctx context.Context, cursor *TrackerCursor) error

	Ping(ctx context.Context) error
	Close() error
}
