package exchange

import (
	"context"
	"crypto/ecdsa"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"vaulttrust/internal/notify"
	"vaulttrust/internal/storage"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func (w wallet) request(t *testing.T, name string, email string) RegisterRequest {
	message := "VaultTrust registration for " + name
	return RegisterRequest{
		Name:          name,
		Email:         email,
		WalletAddress: w.address,
		Signature:     w.sign(t, message),
		Message:       message,
	}
}

func newTestService(t *testing.T) (*Service, *storage.GormStorage, *notify.Recorder) {
	t.Helper()
	s, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "exchange.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	recorder := &notify.Recorder{}
	return NewService(s, recorder), s, recorder
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := generateCode()
		require.Len(t, code, 6)
		value, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, value, 100000)
		assert.LessOrEqual(t, value, 999999)
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	service, s, recorder := newTestService(t)
	w := newWallet(t)

	request := w.request(t, "Acme", " Ops@Acme.io ")
	request.WalletAddress = strings.ToLower(w.address)

	registration, err := service.Register(ctx, request)
	require.NoError(t, err)
	require.Len(t, registration.Code, 6)
	assert.Equal(t, w.address, registration.Exchange.WalletAddress)
	assert.Equal(t, "ops@acme.io", registration.Exchange.Email)
	assert.False(t, registration.Exchange.Verified)

	stored, err := s.GetExchangeByWallet(ctx, w.address)
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationCode)
	assert.Equal(t, registration.Code, *stored.VerificationCode)

	auditLogs, err := s.GetAuditLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, auditLogs, 1)
	assert.Equal(t, RegisteredAction, auditLogs[0].Action)
	assert.Len(t, recorder.Events(), 1)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)
	w := newWallet(t)

	_, err := service.Register(ctx, w.request(t, "Acme", "ops@acme.io"))
	require.NoError(t, err)

	_, err = service.Register(ctx, w.request(t, "Acme Again", "other@acme.io"))
	assert.ErrorIs(t, err, ErrWalletRegistered)

	other := newWallet(t)
	_, err = service.Register(ctx, other.request(t, "Copycat", "OPS@acme.io"))
	assert.ErrorIs(t, err, ErrEmailRegistered)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)
	w := newWallet(t)
	impostor := newWallet(t)

	tests := []struct {
		name    string
		mutate  func(r *RegisterRequest)
		wantErr error
	}{
		{"missing name", func(r *RegisterRequest) { r.Name = " " }, ErrMissingFields},
		{"missing email", func(r *RegisterRequest) { r.Email = "" }, ErrMissingFields},
		{"missing signature", func(r *RegisterRequest) { r.Signature = "" }, ErrSignatureRequired},
		{"missing message", func(r *RegisterRequest) { r.Message = "" }, ErrSignatureRequired},
		{"bad wallet", func(r *RegisterRequest) { r.WalletAddress = "0x1234" }, ErrInvalidWalletAddress},
		{"malformed signature", func(r *RegisterRequest) { r.Signature = "0xdead" }, ErrInvalidSignature},
		{"signed by another wallet", func(r *RegisterRequest) { r.Signature = impostor.sign(t, r.Message) }, ErrInvalidSignature},
		{"tampered message", func(r *RegisterRequest) { r.Message += "!" }, ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := w.request(t, "Acme", "ops@acme.io")
			tt.mutate(&request)
			_, err := service.Register(ctx, request)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	service, s, _ := newTestService(t)
	w := newWallet(t)

	registration, err := service.Register(ctx, w.request(t, "Acme", "ops@acme.io"))
	require.NoError(t, err)

	assert.ErrorIs(t, service.Verify(ctx, "", registration.Code), ErrCodeRequired)
	assert.ErrorIs(t, service.Verify(ctx, w.address, ""), ErrCodeRequired)

	wrong := "000000"
	if registration.Code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, service.Verify(ctx, w.address, wrong), ErrInvalidCode)
	assert.ErrorIs(t, service.Verify(ctx, newWallet(t).address, registration.Code), ErrInvalidCode)
	assert.ErrorIs(t, service.Verify(ctx, w.address, " "+registration.Code+"\n"), ErrInvalidCode)
	assert.ErrorIs(t, service.Verify(ctx, w.address, registration.Code+" "), ErrInvalidCode)

	require.NoError(t, service.Verify(ctx, strings.ToLower(w.address), registration.Code))

	exchange, err := service.Get(ctx, w.address)
	require.NoError(t, err)
	assert.True(t, exchange.Verified)
	assert.Nil(t, exchange.VerificationCode)

	assert.ErrorIs(t, service.Verify(ctx, w.address, registration.Code), ErrInvalidCode)

	auditLogs, err := s.GetAuditLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, auditLogs, 2)
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	_, err := service.Get(ctx, newWallet(t).address)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = service.Get(ctx, "not-an-address")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"Acme", "Globex"} {
		w := newWallet(t)
		_, err := service.Register(ctx, w.request(t, name, strings.ToLower(name)+"@example.com"))
		require.NoError(t, err)
	}

	exchanges, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, exchanges, 2)
}
