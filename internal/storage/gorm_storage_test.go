package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vaulttrust/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *storage.GormStorage {
	t.Helper()

	s, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "vaulttrust.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string {
	return &s
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := storage.New("mysql", "dsn")
	assert.Error(t, err)
}

func TestExchangeUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	exchange := &storage.Exchange{
		Name:             "Acme",
		Email:            "ops@acme.io",
		WalletAddress:    "0x1111111111111111111111111111111111111111",
		VerificationCode: strPtr("123456"),
	}
	require.NoError(t, s.CreateExchange(ctx, exchange))
	assert.NotEmpty(t, exchange.ID)
	assert.False(t, exchange.Verified)

	err := s.CreateExchange(ctx, &storage.Exchange{
		Name:          "Other",
		Email:         "ops@acme.io",
		WalletAddress: "0x2222222222222222222222222222222222222222",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	err = s.CreateExchange(ctx, &storage.Exchange{
		Name:          "Other",
		Email:         "other@acme.io",
		WalletAddress: "0x1111111111111111111111111111111111111111",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	byEmail, err := s.GetExchangeByEmail(ctx, "ops@acme.io")
	require.NoError(t, err)
	assert.Equal(t, exchange.ID, byEmail.ID)

	_, err = s.GetExchangeByWallet(ctx, "0x3333333333333333333333333333333333333333")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVerifyExchangeClearsCode(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	wallet := "0x1111111111111111111111111111111111111111"
	require.NoError(t, s.CreateExchange(ctx, &storage.Exchange{
		Name:             "Acme",
		Email:            "ops@acme.io",
		WalletAddress:    wallet,
		VerificationCode: strPtr("654321"),
	}))

	ok, err := s.VerifyExchange(ctx, wallet, "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.VerifyExchange(ctx, wallet, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.VerifyExchange(ctx, wallet, "654321")
	require.NoError(t, err)
	assert.True(t, ok)

	exchange, err := s.GetExchangeByWallet(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, exchange.Verified)
	assert.Nil(t, exchange.VerificationCode)

	ok, err = s.VerifyExchange(ctx, wallet, "654321")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmissionsByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	alice := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	bob := "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, owner := range []string{alice, bob, alice, alice} {
		require.NoError(t, s.CreateSubmission(ctx, &storage.Submission{
			UserAddress:     owner,
			ReserveID:       int64(i),
			TokenSymbol:     "USDC",
			DataType:        storage.DataTypeReserve,
			TransactionHash: "0xhash",
			BlockNumber:     int64(100 + i),
			Timestamp:       base.Add(time.Duration(i) * time.Hour),
		}))
	}

	submissions, err := s.GetSubmissionsByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, submissions, 3)
	for _, submission := range submissions {
		assert.Equal(t, alice, submission.UserAddress)
		assert.Equal(t, storage.EncryptedOnChain, submission.EncryptedBalance)
	}
	assert.Equal(t, int64(3), submissions[0].ReserveID)
	assert.Equal(t, int64(2), submissions[1].ReserveID)
	assert.Equal(t, int64(0), submissions[2].ReserveID)

	all, err := s.GetAllSubmissions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := s.GetSubmissionsByUser(ctx, "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRecordSubmissionIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	submission := func() *storage.Submission {
		return &storage.Submission{
			UserAddress:     "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
			ReserveID:       7,
			TokenSymbol:     "ETH",
			DataType:        storage.DataTypeLiability,
			TransactionHash: "0xabc",
			BlockNumber:     42,
			Timestamp:       time.Now().UTC(),
		}
	}

	require.NoError(t, s.RecordSubmission(ctx, submission(), &storage.AuditLog{
		Action:      "RESERVE_SUBMITTED",
		PerformedBy: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	}))

	err := s.RecordSubmission(ctx, submission(), &storage.AuditLog{
		Action:      "RESERVE_SUBMITTED",
		PerformedBy: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	all, err := s.GetAllSubmissions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	auditLogs, err := s.GetAuditLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, auditLogs, 1)
}

func TestSubmissionVerification(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	submission := &storage.Submission{
		UserAddress:     "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		ReserveID:       1,
		TokenSymbol:     "BTC",
		DataType:        storage.DataTypeReserve,
		TransactionHash: "0xdef",
		BlockNumber:     1,
		Timestamp:       time.Now().UTC(),
	}
	require.NoError(t, s.CreateSubmission(ctx, submission))

	verifiedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateSubmissionVerification(ctx, submission.ID, "0xAuditor", verifiedAt))

	stored, err := s.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	require.NotNil(t, stored.VerifiedBy)
	assert.Equal(t, "0xAuditor", *stored.VerifiedBy)
	require.NotNil(t, stored.VerifiedAt)
	assert.True(t, verifiedAt.Equal(*stored.VerifiedAt))

	err = s.UpdateSubmissionVerification(ctx, "missing", "0xAuditor", verifiedAt)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProofLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	submission := &storage.Submission{
		UserAddress:     "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		ReserveID:       1,
		TokenSymbol:     "BTC",
		DataType:        storage.DataTypeReserve,
		TransactionHash: "0xdef",
		BlockNumber:     1,
		Timestamp:       time.Now().UTC(),
	}
	require.NoError(t, s.CreateSubmission(ctx, submission))

	proof := &storage.Proof{
		SubmissionID:   submission.ID,
		ProofType:      "coverage",
		ProofData:      "{}",
		AuditorAddress: "0xAuditor",
	}
	require.NoError(t, s.CreateProof(ctx, proof))
	assert.Equal(t, storage.ProofStatusPending, proof.Status)

	proofs, err := s.GetProofsBySubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, proofs, 1)

	completedAt := time.Now().UTC()
	require.NoError(t, s.UpdateProofStatus(ctx, proof.ID, storage.ProofStatusCompleted, &completedAt))

	stored, err := s.GetProof(ctx, proof.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ProofStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	_, err = s.GetProof(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuditLogLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateAuditLog(ctx, &storage.AuditLog{
			Action:      "TEST",
			PerformedBy: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	auditLogs, err := s.GetAuditLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, auditLogs, 2)
	assert.True(t, auditLogs[0].Timestamp.After(auditLogs[1].Timestamp))
	assert.True(t, base.Add(4*time.Minute).Equal(auditLogs[0].Timestamp))
}

func TestTrackerCursor(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	contract := "0x1111111111111111111111111111111111111111"
	_, found, err := s.GetTrackerCursor(ctx, contract, "ReserveSubmitted")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.UpdateTrackerCursor(ctx, &storage.TrackerCursor{
		ContractAddress: contract,
		EventName:       "ReserveSubmitted",
		BlockNumber:     10,
	}))
	require.NoError(t, s.UpdateTrackerCursor(ctx, &storage.TrackerCursor{
		ContractAddress: contract,
		EventName:       "ReserveSubmitted",
		BlockNumber:     25,
	}))

	block, found, err := s.GetTrackerCursor(ctx, contract, "ReserveSubmitted")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(25), block)
}
