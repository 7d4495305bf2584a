package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drs-api/internal/config"
	"github.com/drs-api/internal/domain"
	jwtinfra "github.com/drs-api/internal/infrastructure/jwt"
	"github.com/drs-api/internal/pkg/otp"
	"github.com/drs-api/internal/pkg/password"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- fakes ---

// memStore is an in-memory AccountStore with the same versioned write
// semantics as the DynamoDB repo.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]domain.Account
	saves   int
	saveErr error
}

func newMemStore() *memStore { return &memStore{byID: map[string]domain.Account{}} }

func (m *memStore) FindByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return m.findBy(func(a domain.Account) bool { return a.Email == email })
}

func (m *memStore) FindByPhone(_ context.Context, phone string) (*domain.Account, error) {
	return m.findBy(func(a domain.Account) bool { return a.Phone != nil && *a.Phone == phone })
}

func (m *memStore) findBy(match func(domain.Account) bool) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if match(a) {
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) Save(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return domain.Internal("save", m.saveErr)
	}
	stored, exists := m.byID[a.AccountID]
	switch {
	case a.Version == 0 && exists, a.Version != 0 && (!exists || stored.Version != a.Version):
		return domain.ErrConflict
	}
	a.Version++
	m.byID[a.AccountID] = *a
	m.saves++
	return nil
}

func (m *memStore) get(t *testing.T, email string) domain.Account {
	t.Helper()
	a, err := m.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return *a
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, n domain.Notice) error {
	return m.Called(ctx, n).Error(0)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

// --- helpers ---

type fixture struct {
	svc      Service
	admins   *memStore
	doctors  *memStore
	notifier *mockNotifier
	tokens   *jwtinfra.Provider
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	tokens, err := jwtinfra.NewProvider(&config.Config{
		JWTSecret:           strings.Repeat("s", 32),
		EmailChangeTokenTTL: time.Hour,
	}, jwtinfra.WithClock(c.Now))
	require.NoError(t, err)

	f := &fixture{
		admins:   newMemStore(),
		doctors:  newMemStore(),
		notifier: &mockNotifier{},
		tokens:   tokens,
		clock:    c,
	}
	f.svc = NewService(ServiceDeps{
		Admins:   f.admins,
		Doctors:  f.doctors,
		Hasher:   password.NewHasher(bcrypt.MinCost),
		OTP:      otp.NewGenerator(6, ""),
		Tokens:   tokens,
		Notifier: f.notifier,
		Log:      zerolog.Nop(),
		Options: Options{
			AdminSessionTTL:  24 * time.Hour,
			DoctorSessionTTL: 7 * 24 * time.Hour,
			OTPTTL:           15 * time.Minute,
			FrontendURL:      "https://drs.test",
			EmailChangeLink:  "https://api.drs.test/v1/accounts/confirm-email",
		},
		Now: c.Now,
	})
	return f
}

func (f *fixture) acceptNotices() {
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
}

func strPtr(s string) *string { return &s }

type capturedNotice struct {
	domain.EmailUpdateNotice
}

func (n *capturedNotice) token() string {
	_, token, _ := strings.Cut(n.Link, "?token=")
	return token
}

// captureEmailChange records the latest email change notice and accepts
// every other notice.
func (f *fixture) captureEmailChange() *capturedNotice {
	got := &capturedNotice{}
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n domain.Notice) bool {
		if eu, ok := n.(domain.EmailUpdateNotice); ok {
			got.EmailUpdateNotice = eu
			return true
		}
		return false
	})).Return(nil)
	f.acceptNotices()
	return got
}

func doctorSignup() domain.SignupRequest {
	return domain.SignupRequest{
		Kind:     domain.KindDoctor,
		Name:     "Dr. D",
		Email:    "d@x.com",
		Phone:    strPtr("01012345678"),
		Password: "Secr3t!pw",
	}
}

func adminSignup() domain.SignupRequest {
	return domain.SignupRequest{Kind: domain.KindAdmin, Name: "Root", Email: "a@x.com", Password: "adminpass1"}
}

// verifiedDoctor signs up and verifies a doctor.
func (f *fixture) verifiedDoctor(t *testing.T) domain.Account {
	t.Helper()
	_, code, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)
	_, err = f.svc.VerifySignup(context.Background(), VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: code})
	require.NoError(t, err)
	return f.doctors.get(t, "d@x.com")
}

// --- signup & verification ---

func TestSignup_DoctorScenario(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n domain.Notice) bool {
		return n.Kind() == domain.NoticeSignup && n.Recipient() == "d@x.com"
	})).Return(nil).Once()
	ctx := context.Background()

	acc, code, err := f.svc.Signup(ctx, doctorSignup())
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Empty(t, acc.PasswordHash)
	assert.Empty(t, acc.OTP)
	assert.False(t, acc.IsVerified)
	assert.False(t, acc.IsActive)
	assert.Equal(t, domain.RoleDoctor, acc.Role)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)

	_, err = f.svc.VerifySignup(ctx, VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: "WRONG1"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	verified, err := f.svc.VerifySignup(ctx, VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: code})
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.True(t, verified.IsActive)

	stored := f.doctors.get(t, "d@x.com")
	assert.Empty(t, stored.OTP)
	assert.True(t, stored.IsVerified)
	f.notifier.AssertExpectations(t)
}

func TestSignup_InitialStandingPerKind(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()

	admin, _, err := f.svc.Signup(context.Background(), adminSignup())
	require.NoError(t, err)
	assert.True(t, admin.IsActive)
	assert.False(t, admin.IsVerified)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	stored := f.admins.get(t, "a@x.com")
	assert.NotEqual(t, "adminpass1", stored.PasswordHash)
	assert.NotEmpty(t, stored.OTP)
}

func TestSignup_NormalizesEmail(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	req := doctorSignup()
	req.Email = "  D@X.Com "

	acc, _, err := f.svc.Signup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "d@x.com", acc.Email)
}

func TestSignup_DuplicateEmail_SavesOnce(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()

	_, _, err := f.svc.Signup(ctx, doctorSignup())
	require.NoError(t, err)

	dup := doctorSignup()
	dup.Phone = strPtr("01198765432")
	_, _, err = f.svc.Signup(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Equal(t, 1, f.doctors.saves+f.admins.saves)
	assert.Len(t, f.doctors.byID, 1)
}

func TestSignup_DuplicateEmailAcrossKinds(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()

	_, _, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)

	req := adminSignup()
	req.Email = "d@x.com"
	_, _, err = f.svc.Signup(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, f.admins.byID)
}

func TestSignup_DuplicatePhone(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()

	_, _, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)

	dup := doctorSignup()
	dup.Email = "other@x.com"
	_, _, err = f.svc.Signup(context.Background(), dup)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSignup_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	acc, code, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)
	assert.NotNil(t, acc)
	assert.NotEmpty(t, code)
	assert.Equal(t, 1, f.doctors.saves)
}

func TestSignup_StoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.doctors.saveErr = errors.New("throttled")

	_, _, err := f.svc.Signup(context.Background(), doctorSignup())
	assert.ErrorIs(t, err, domain.ErrInternal)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestSignup_UnknownKind(t *testing.T) {
	f := newFixture(t)
	req := doctorSignup()
	req.Kind = "nurse"
	_, _, err := f.svc.Signup(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestSignup_OverlongPasswordIsBadRequest(t *testing.T) {
	f := newFixture(t)
	req := doctorSignup()
	req.Password = strings.Repeat("ك", 40)
	_, _, err := f.svc.Signup(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.NotErrorIs(t, err, domain.ErrInternal)
}

func TestChangePassword_OverlongPasswordIsBadRequest(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	doc := f.verifiedDoctor(t)

	err := f.svc.ChangePassword(context.Background(), domain.KindDoctor, doc.AccountID, ChangePasswordRequest{
		OldPassword: "Secr3t!pw",
		NewPassword: strings.Repeat("é", 37),
	})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestVerifySignup_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifySignup(context.Background(), VerifyRequest{Kind: domain.KindDoctor, Email: "nobody@x.com", OTP: "123456"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifySignup_IsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	_, code, err := f.svc.Signup(ctx, doctorSignup())
	require.NoError(t, err)

	req := VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: code}
	_, err = f.svc.VerifySignup(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.VerifySignup(ctx, req)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestVerifySignup_IsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	_, code, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)

	_, err = f.svc.VerifySignup(context.Background(), VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: strings.ToLower(code) + " "})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestVerifySignup_ExpiredCode(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	_, code, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)

	f.clock.t = f.clock.t.Add(16 * time.Minute)
	_, err = f.svc.VerifySignup(context.Background(), VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: code})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestVerifySignup_ConcurrentAttemptsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	_, code, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifySignup(context.Background(), VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: code})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestVerifySignup_DoesNotUnblockBlockedAccount(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)

	_, err := f.svc.ToggleActive(ctx, "admin-1", domain.KindDoctor, doc.AccountID)
	require.NoError(t, err)
	require.NoError(t, f.svc.ResendCode(ctx, ResendRequest{Kind: domain.KindDoctor, Email: strPtr("d@x.com")}))
	code := f.doctors.get(t, "d@x.com").OTP

	acc, err := f.svc.VerifySignup(ctx, VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: code})
	require.NoError(t, err)
	assert.False(t, acc.IsActive)
}

// --- login ---

func TestLogin_AdminWithoutPendingOTP(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	_, code, err := f.svc.Signup(ctx, adminSignup())
	require.NoError(t, err)
	_, err = f.svc.VerifySignup(ctx, VerifyRequest{Kind: domain.KindAdmin, Email: "a@x.com", OTP: code})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindAdmin, Email: "a@x.com", Password: "adminpass1", OTP: ""})
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindAdmin, Email: "a@x.com", Password: "adminpass1", OTP: code})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLogin_AdminOTPFlow(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	_, _, err := f.svc.Signup(ctx, adminSignup())
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestLoginOTP(ctx, "a@x.com"))
	code := f.admins.get(t, "a@x.com").OTP
	require.Len(t, code, 6)

	sess, err := f.svc.Login(ctx, LoginRequest{Kind: domain.KindAdmin, Email: "a@x.com", Password: "adminpass1", OTP: code})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, sess.Claims.Role)
	assert.Equal(t, f.clock.t.Add(24*time.Hour), sess.Claims.ExpiresAt)
	assert.Empty(t, f.admins.get(t, "a@x.com").OTP)
	assert.Empty(t, sess.Account.PasswordHash)

	claims, err := f.tokens.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Claims, *claims)

	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindAdmin, Email: "a@x.com", Password: "adminpass1", OTP: code})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLogin_AdminChecksOTPBeforePassword(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	_, _, err := f.svc.Signup(ctx, adminSignup())
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestLoginOTP(ctx, "a@x.com"))
	code := f.admins.get(t, "a@x.com").OTP

	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindAdmin, Email: "a@x.com", Password: "wrong-pass", OTP: code})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, code, f.admins.get(t, "a@x.com").OTP)
}

func TestLogin_InactiveAdminIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	admin, _, err := f.svc.Signup(ctx, adminSignup())
	require.NoError(t, err)
	_, err = f.svc.ToggleActive(ctx, "someone-else", domain.KindAdmin, admin.AccountID)
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestLoginOTP(ctx, "a@x.com"))
	code := f.admins.get(t, "a@x.com").OTP

	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindAdmin, Email: "a@x.com", Password: "adminpass1", OTP: code})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLogin_InactiveDoctorNeverSucceeds(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	_, _, err := f.svc.Signup(ctx, doctorSignup())
	require.NoError(t, err)

	for _, pw := range []string{"Secr3t!pw", "wrong", ""} {
		_, err := f.svc.Login(ctx, LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: pw})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrConflict), "password %q: %v", pw, err)
	}
	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "Secr3t!pw"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLogin_UnverifiedActiveDoctorIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	acc, _, err := f.svc.Signup(ctx, doctorSignup())
	require.NoError(t, err)
	_, err = f.svc.ToggleActive(ctx, "admin-1", domain.KindDoctor, acc.AccountID)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "Secr3t!pw"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLogin_DoctorNeedsNoOTP(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	f.verifiedDoctor(t)

	sess, err := f.svc.Login(context.Background(), LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "Secr3t!pw"})
	require.NoError(t, err)
	assert.Equal(t, domain.KindDoctor, sess.Claims.Kind)
	assert.Equal(t, f.clock.t.Add(7*24*time.Hour), sess.Claims.ExpiresAt)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, domain.LoginNotice{To: "d@x.com", Name: "Dr. D"})
}

func TestLogin_DoctorWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	f.verifiedDoctor(t)

	_, err := f.svc.Login(context.Background(), LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "nope"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLogin_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), LoginRequest{Kind: domain.KindDoctor, Email: "ghost@x.com", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestLoginOTP_UnknownAdminIsAcked(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RequestLoginOTP(context.Background(), "ghost@x.com")
	assert.NoError(t, err)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestRequestLoginOTP_AcksWhenNotifierFails(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	_, _, err := f.svc.Signup(context.Background(), adminSignup())
	require.NoError(t, err)

	assert.NoError(t, f.svc.RequestLoginOTP(context.Background(), "a@x.com"))
}

// --- password reset ---

func TestResetPassword_FlowIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	f.verifiedDoctor(t)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, domain.KindDoctor, "d@x.com"))
	code := f.doctors.get(t, "d@x.com").OTP

	req := ResetPasswordRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: code, NewPassword: "n3wPassword"}
	require.NoError(t, f.svc.ResetPassword(ctx, req))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, req), domain.ErrConflict)
	assert.Empty(t, f.doctors.get(t, "d@x.com").OTP)

	_, err := f.svc.Login(ctx, LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "Secr3t!pw"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "n3wPassword"})
	assert.NoError(t, err)
}

func TestResetPassword_WrongCode(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	f.verifiedDoctor(t)
	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), domain.KindDoctor, "d@x.com"))

	err := f.svc.ResetPassword(context.Background(), ResetPasswordRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: "000000", NewPassword: "n3wPassword"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRequestPasswordReset_InactiveDoctorIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	_, _, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)

	err = f.svc.RequestPasswordReset(context.Background(), domain.KindDoctor, "d@x.com")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRequestPasswordReset_SendsResetNotice(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	_, _, err := f.svc.Signup(context.Background(), adminSignup())
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), domain.KindAdmin, "a@x.com"))
	code := f.admins.get(t, "a@x.com").OTP
	f.notifier.AssertCalled(t, "Notify", mock.Anything, domain.ResetPasswordNotice{
		To: "a@x.com", Name: "Root", OTP: code, Link: "https://drs.test/reset-password",
	})
}

// --- resend ---

func TestResendCode_ByPhone(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	_, first, err := f.svc.Signup(context.Background(), doctorSignup())
	require.NoError(t, err)

	require.NoError(t, f.svc.ResendCode(context.Background(), ResendRequest{Kind: domain.KindDoctor, Phone: strPtr("01012345678")}))
	code := f.doctors.get(t, "d@x.com").OTP
	f.notifier.AssertCalled(t, "Notify", mock.Anything, domain.ResendCodeNotice{
		To: "d@x.com", Name: "Dr. D", OTP: code, Phone: "01012345678",
	})

	if code != first {
		_, err = f.svc.VerifySignup(context.Background(), VerifyRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: first})
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
}

func TestResendCode_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ResendCode(ctx, ResendRequest{Kind: domain.KindDoctor})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	err = f.svc.ResendCode(ctx, ResendRequest{Kind: domain.KindAdmin, Phone: strPtr("01012345678")})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- profile ---

func TestUpdateProfile_EmailChangeIsTwoStep(t *testing.T) {
	f := newFixture(t)
	var notice domain.EmailUpdateNotice
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n domain.Notice) bool {
		if eu, ok := n.(domain.EmailUpdateNotice); ok {
			notice = eu
			return true
		}
		return false
	})).Return(nil)
	f.acceptNotices()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)

	acc, err := f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{
		Name:  strPtr("Dr. Dee"),
		Email: strPtr("New@X.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "d@x.com", acc.Email)
	assert.Equal(t, "Dr. Dee", acc.Name)
	assert.False(t, acc.IsVerified)

	require.Equal(t, "new@x.com", notice.To)
	require.True(t, strings.HasPrefix(notice.Link, "https://api.drs.test/v1/accounts/confirm-email?token="))
	token := strings.TrimPrefix(notice.Link, "https://api.drs.test/v1/accounts/confirm-email?token=")

	_, err = f.svc.ConfirmEmailChange(ctx, ConfirmEmailRequest{Token: token, OTP: "ZZZZZZ"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	confirmed, err := f.svc.ConfirmEmailChange(ctx, ConfirmEmailRequest{Token: token, OTP: notice.OTP})
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", confirmed.Email)
	assert.True(t, confirmed.IsVerified)

	_, err = f.svc.ConfirmEmailChange(ctx, ConfirmEmailRequest{Token: token, OTP: notice.OTP})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConfirmEmailChange_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	token, err := f.tokens.IssueEmailChange(domain.EmailChangeClaims{AccountID: "x", Kind: domain.KindDoctor, NewEmail: "n@x.com"})
	require.NoError(t, err)

	f.clock.t = f.clock.t.Add(2 * time.Hour)
	_, err = f.svc.ConfirmEmailChange(context.Background(), ConfirmEmailRequest{Token: token, OTP: "123456"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestConfirmEmailChange_EmailTakenMeanwhile(t *testing.T) {
	f := newFixture(t)
	notice := f.captureEmailChange()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)

	_, err := f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{Email: strPtr("taken@x.com")})
	require.NoError(t, err)

	req := adminSignup()
	req.Email = "taken@x.com"
	_, _, err = f.svc.Signup(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.ConfirmEmailChange(ctx, ConfirmEmailRequest{Token: notice.token(), OTP: notice.OTP})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUpdateProfile_EmailChangeKeepsOTPSlot(t *testing.T) {
	f := newFixture(t)
	notice := f.captureEmailChange()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, domain.KindDoctor, "d@x.com"))
	resetCode := f.doctors.get(t, "d@x.com").OTP

	_, err := f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{Email: strPtr("new@x.com")})
	require.NoError(t, err)
	stored := f.doctors.get(t, "d@x.com")
	assert.Equal(t, resetCode, stored.OTP)
	assert.Equal(t, "new@x.com", stored.PendingEmail)

	err = f.svc.ResetPassword(ctx, ResetPasswordRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: notice.OTP, NewPassword: "n3wPassword"})
	if notice.OTP != resetCode {
		assert.ErrorIs(t, err, domain.ErrConflict)
	}

	require.NoError(t, f.svc.ResetPassword(ctx, ResetPasswordRequest{Kind: domain.KindDoctor, Email: "d@x.com", OTP: resetCode, NewPassword: "n3wPassword"}))
	confirmed, err := f.svc.ConfirmEmailChange(ctx, ConfirmEmailRequest{Token: notice.token(), OTP: notice.OTP})
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", confirmed.Email)
	assert.Empty(t, confirmed.PendingEmail)
}

func TestConfirmEmailChange_SupersededRequest(t *testing.T) {
	f := newFixture(t)
	notice := f.captureEmailChange()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)

	_, err := f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{Email: strPtr("first@x.com")})
	require.NoError(t, err)
	first := *notice

	_, err = f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{Email: strPtr("second@x.com")})
	require.NoError(t, err)

	_, err = f.svc.ConfirmEmailChange(ctx, ConfirmEmailRequest{Token: first.token(), OTP: first.OTP})
	assert.ErrorIs(t, err, domain.ErrConflict)

	confirmed, err := f.svc.ConfirmEmailChange(ctx, ConfirmEmailRequest{Token: notice.token(), OTP: notice.OTP})
	require.NoError(t, err)
	assert.Equal(t, "second@x.com", confirmed.Email)
}

func TestUpdateProfile_EmailAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)
	_, _, err := f.svc.Signup(ctx, adminSignup())
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{Email: strPtr("a@x.com")})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.True(t, f.doctors.get(t, "d@x.com").IsVerified)
}

func TestUpdateProfile_PhoneTaken(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)
	other := doctorSignup()
	other.Email = "o@x.com"
	other.Phone = strPtr("01198765432")
	_, _, err := f.svc.Signup(ctx, other)
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{Phone: strPtr("01198765432")})
	assert.ErrorIs(t, err, domain.ErrConflict)

	acc, err := f.svc.UpdateProfile(ctx, domain.KindDoctor, doc.AccountID, domain.ProfileUpdate{Phone: strPtr("01212345678")})
	require.NoError(t, err)
	assert.Equal(t, "01212345678", *acc.Phone)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	doc := f.verifiedDoctor(t)

	err := f.svc.ChangePassword(ctx, domain.KindDoctor, doc.AccountID, ChangePasswordRequest{OldPassword: "bad", NewPassword: "an0therPass"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, f.svc.ChangePassword(ctx, domain.KindDoctor, doc.AccountID, ChangePasswordRequest{OldPassword: "Secr3t!pw", NewPassword: "an0therPass"}))
	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "an0therPass"})
	assert.NoError(t, err)
}

func TestToggleActive(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	admin, _, err := f.svc.Signup(ctx, adminSignup())
	require.NoError(t, err)

	_, err = f.svc.ToggleActive(ctx, admin.AccountID, domain.KindAdmin, admin.AccountID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	doc := f.verifiedDoctor(t)
	acc, err := f.svc.ToggleActive(ctx, admin.AccountID, domain.KindDoctor, doc.AccountID)
	require.NoError(t, err)
	assert.False(t, acc.IsActive)

	_, err = f.svc.Login(ctx, LoginRequest{Kind: domain.KindDoctor, Email: "d@x.com", Password: "Secr3t!pw"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdatePagesAndMe(t *testing.T) {
	f := newFixture(t)
	f.acceptNotices()
	ctx := context.Background()
	admin, _, err := f.svc.Signup(ctx, adminSignup())
	require.NoError(t, err)

	_, err = f.svc.UpdatePages(ctx, admin.AccountID, []byte(`["plans","coupons"]`))
	require.NoError(t, err)

	me, err := f.svc.Me(ctx, domain.KindAdmin, admin.AccountID)
	require.NoError(t, err)
	assert.JSONEq(t, `["plans","coupons"]`, string(me.Pages))
	assert.Empty(t, me.PasswordHash)

	_, err = f.svc.Me(ctx, domain.KindDoctor, admin.AccountID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
