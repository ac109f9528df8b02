package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vaulttrust/internal/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

type GormStorage struct {
	db *gorm.DB
}

// New opens the database for the named driver and migrates the schema.
func New(driver string, dsn string) (*GormStorage, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgresStorage(dsn)
	case DriverSqlite:
		return NewSqliteStorage(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func NewPostgresStorage(dsn string) (*GormStorage, error) {
	logger.Debug("initializing postgres database...")
	return open(postgres.Open(dsn), false)
}

func NewSqliteStorage(path string) (*GormStorage, error) {
	logger.Debug("initializing sqlite database...", zap.String("path", path))
	return open(sqlite.Open(path), true)
}

func open(dialector gorm.Dialector, singleConnection bool) (*GormStorage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if singleConnection {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers, a single connection avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	}

	storage := &GormStorage{db: db}
	if err := storage.Migrate(); err != nil {
		_ = storage.Close()
		return nil, err
	}

	logger.Debug("initializing database... done")
	return storage, nil
}

func (s *GormStorage) Migrate() error {
	err := s.db.AutoMigrate(
		&Exchange{},
		&Submission{},
		&Proof{},
		&AuditLog{},
		&TrackerCursor{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

func (s *GormStorage) CreateSubmission(ctx context.Context, submission *Submission) error {
	return translate(s.db.WithContext(ctx).Create(submission).Error)
}

func (s *GormStorage) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	var submission Submission
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error
	if err != nil {
		return nil, translate(err)
	}

	return &submission, nil
}

func (s *GormStorage) GetSubmissionsByUser(ctx context.Context, userAddress string) ([]*Submission, error) {
	submissions := make([]*Submission, 0)
	err := s.db.WithContext(ctx).
		Where("user_address = ?", userAddress).
		Order("timestamp desc").
		Order("block_number desc").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

func (s *GormStorage) GetAllSubmissions(ctx context.Context) ([]*Submission, error) {
	submissions := make([]*Submission, 0)
	err := s.db.WithContext(ctx).
		Order("timestamp desc").
		Order("block_number desc").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

func (s *GormStorage) UpdateSubmissionVerification(ctx context.Context, id string, verifiedBy string, verifiedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&Submission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"verified":    true,
			"verified_by": verifiedBy,
			"verified_at": verifiedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// RecordSubmission stores a mirrored on-chain submission together with its
// audit entry. Either both rows are written or none.
func (s *GormStorage) RecordSubmission(ctx context.Context, submission *Submission, auditLog *AuditLog) error {
	logger.Debug("recording submission...", zap.String("transaction hash", submission.TransactionHash))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(submission).Error; err != nil {
			return err
		}
		return tx.Create(auditLog).Error
	})
	if err != nil {
		return translate(err)
	}

	logger.Debug("recording submission... done", zap.String("id", submission.ID))
	return nil
}

func (s *GormStorage) CreateProof(ctx context.Context, proof *Proof) error {
	return translate(s.db.WithContext(ctx).Create(proof).Error)
}

func (s *GormStorage) GetProof(ctx context.Context, id string) (*Proof, error) {
	var proof Proof
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&proof).Error
	if err != nil {
		return nil, translate(err)
	}

	return &proof, nil
}

func (s *GormStorage) GetProofsBySubmission(ctx context.Context, submissionID string) ([]*Proof, error) {
	proofs := make([]*Proof, 0)
	err := s.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at desc").
		Find(&proofs).Error
	if err != nil {
		return nil, err
	}

	return proofs, nil
}

func (s *GormStorage) UpdateProofStatus(ctx context.Context, id string, status string, completedAt *time.Time) error {
	result := s.db.WithContext(ctx).Model(&Proof{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *GormStorage) CreateAuditLog(ctx context.Context, auditLog *AuditLog) error {
	return translate(s.db.WithContext(ctx).Create(auditLog).Error)
}

func (s *GormStorage) GetAuditLogs(ctx context.Context, limit int) ([]*AuditLog, error) {
	if limit <= 0 {
		limit = DefaultAuditLogLimit
	}

	auditLogs := make([]*AuditLog, 0)
	err := s.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&auditLogs).Error
	if err != nil {
		return nil, err
	}

	return auditLogs, nil
}

func (s *GormStorage) CreateExchange(ctx context.Context, exchange *Exchange) error {
	return translate(s.db.WithContext(ctx).Create(exchange).Error)
}

func (s *GormStorage) GetExchangeByWallet(ctx context.Context, walletAddress string) (*Exchange, error) {
	var exchange Exchange
	err := s.db.WithContext(ctx).Where("wallet_address = ?", walletAddress).First(&exchange).Error
	if err != nil {
		return nil, translate(err)
	}

	return &exchange, nil
}

func (s *GormStorage) GetExchangeByEmail(ctx context.Context, email string) (*Exchange, error) {
	var exchange Exchange
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&exchange).Error
	if err != nil {
		return nil, translate(err)
	}

	return &exchange, nil
}

// VerifyExchange marks the exchange verified and clears its code when code
// matches the stored one. The match and the update are a single statement.
func (s *GormStorage) VerifyExchange(ctx context.Context, walletAddress string, code string) (bool, error) {
	if code == "" {
		return false, nil
	}

	result := s.db.WithContext(ctx).Model(&Exchange{}).
		Where("wallet_address = ? and verification_code = ?", walletAddress, code).
		Updates(map[string]any{
			"verified":          true,
			"verification_code": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (s *GormStorage) GetAllExchanges(ctx context.Context) ([]*Exchange, error) {
	exchanges := make([]*Exchange, 0)
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&exchanges).Error
	if err != nil {
		return nil, err
	}

	return exchanges, nil
}

func (s *GormStorage) GetTrackerCursor(ctx context.Context, contractAddress string, eventName string) (uint64, bool, error) {
	logger.Debug("getting tracker cursor...", zap.String("contract", contractAddress), zap.String("event", eventName))

	var cursor TrackerCursor
	err := s.db.WithContext(ctx).
		Where("contract_address = ? and event_name = ?", contractAddress, eventName).
		First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	logger.Debug("getting tracker cursor... done", zap.Uint64("block", cursor.BlockNumber))
	return cursor.BlockNumber, true, nil
}

func (s *GormStorage) UpdateTrackerCursor(ctx context.Context, cursor *TrackerCursor) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_address"}, {Name: "event_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_number"}),
	}).Create(cursor).Error
	if err != nil {
		return err
	}

	return nil
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
