package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const EncryptedOnChain = "ENCRYPTED_ON_CHAIN"

const (
	DataTypeReserve   = "Reserve"
	DataTypeLiability = "Liability"
)

const (
	ProofStatusPending   = "pending"
	ProofStatusCompleted = "completed"
)

type Exchange struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Name             string    `gorm:"size:100;not null" json:"name"`
	Email            string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	WalletAddress    string    `gorm:"size:42;not null;uniqueIndex" json:"walletAddress"`
	Verified         bool      `gorm:"not null;default:false" json:"verified"`
	VerificationCode *string   `gorm:"size:6" json:"-"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
}

type Submission struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	UserAddress      string     `gorm:"size:42;not null;index;uniqueIndex:idx_submission_user_reserve" json:"userAddress"`
	ReserveID        int64      `gorm:"not null;uniqueIndex:idx_submission_user_reserve" json:"reserveId"`
	TokenSymbol      string     `gorm:"size:20;not null" json:"tokenSymbol"`
	DataType         string     `gorm:"size:20;not null" json:"dataType"`
	EncryptedBalance string     `gorm:"type:text;not null" json:"encryptedBalance"`
	DecryptedBalance *string    `gorm:"size:30" json:"decryptedBalance"`
	TransactionHash  string     `gorm:"size:66;not null" json:"transactionHash"`
	BlockNumber      int64      `gorm:"not null" json:"blockNumber"`
	Timestamp        time.Time  `gorm:"not null;index" json:"timestamp"`
	Verified         bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedBy       *string    `gorm:"size:42" json:"verifiedBy"`
	VerifiedAt       *time.Time `json:"verifiedAt"`
}

type Proof struct {
	ID             string      `gorm:"primaryKey;size:36" json:"id"`
	SubmissionID   string      `gorm:"size:36;not null;index" json:"submissionId"`
	Submission     *Submission `gorm:"foreignKey:SubmissionID;constraint:OnDelete:RESTRICT" json:"-"`
	ProofType      string      `gorm:"size:50;not null" json:"proofType"`
	ProofData      string      `gorm:"type:text;not null" json:"proofData"`
	AuditorAddress string      `gorm:"size:42;not null" json:"auditorAddress"`
	Status         string      `gorm:"size:20;not null;default:pending" json:"status"`
	CreatedAt      time.Time   `gorm:"not null;autoCreateTime" json:"createdAt"`
	CompletedAt    *time.Time  `json:"completedAt"`
}

type AuditLog struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Action        string    `gorm:"size:100;not null;index" json:"action"`
	PerformedBy   string    `gorm:"size:42;not null" json:"performedBy"`
	TargetAddress *string   `gorm:"size:42" json:"targetAddress"`
	Details       *string   `gorm:"type:text" json:"details"`
	Timestamp     time.Time `gorm:"not null;index" json:"timestamp"`
}

// TrackerCursor is the last block whose logs were fully processed for one
// contract event.
type TrackerCursor struct {
	ContractAddress string `gorm:"primaryKey;size:42"`
	EventName       string `gorm:"primaryKey;size:100"`
	BlockNumber     uint64 `gorm:"not null"`
}

func (e *Exchange) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

func (s *Submission) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.EncryptedBalance == "" {
		s.EncryptedBalance = EncryptedOnChain
	}
	return nil
}

func (p *Proof) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProofStatusPending
	}
	return nil
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}
