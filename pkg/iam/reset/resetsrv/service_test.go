package resetsrv_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/password"
	"github.com/keyward-io/keyward/pkg/iam/principal"
	"github.com/keyward-io/keyward/pkg/iam/ratelimit"
	"github.com/keyward-io/keyward/pkg/iam/reset"
	"github.com/keyward-io/keyward/pkg/iam/reset/resetsrv"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/keyward-io/keyward/pkg/notify"
)

type fakeResetRepo struct {
	mu     sync.Mutex
	byVal  map[string]*reset.ResetToken
	hashes map[kernel.PrincipalID]string
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{
		byVal:  make(map[string]*reset.ResetToken),
		hashes: make(map[kernel.PrincipalID]string),
	}
}

func (r *fakeResetRepo) Issue(_ context.Context, t *reset.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byVal {
		if existing.PrincipalID == t.PrincipalID && !existing.Used {
			existing.Used = true
		}
	}
	cp := *t
	r.byVal[t.Token] = &cp
	return nil
}

func (r *fakeResetRepo) Find(_ context.Context, tenantID kernel.TenantID, value string) (*reset.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byVal[value]
	if !ok || t.TenantID != tenantID {
		return nil, reset.ErrInvalidOrExpired()
	}
	cp := *t
	return &cp, nil
}

func (r *fakeResetRepo) ConsumeAndSetPassword(_ context.Context, tenantID kernel.TenantID, value, newHash string) (*reset.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byVal[value]
	if !ok || t.TenantID != tenantID || !t.IsUsable() {
		return nil, reset.ErrInvalidOrExpired()
	}
	now := time.Now().UTC()
	t.Used = true
	t.UsedAt = &now
	r.hashes[t.PrincipalID] = newHash
	cp := *t
	return &cp, nil
}

func (r *fakeResetRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

func (r *fakeResetRepo) issuedFor(id kernel.PrincipalID) []*reset.ResetToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reset.ResetToken
	for _, t := range r.byVal {
		if t.PrincipalID == id {
			out = append(out, t)
		}
	}
	return out
}

type fakePrincipalRepo struct {
	byEmail map[string]*principal.Principal
}

func (r *fakePrincipalRepo) Create(context.Context, *principal.Principal) error { return nil }

func (r *fakePrincipalRepo) FindByID(_ context.Context, tenantID kernel.TenantID, id kernel.PrincipalID) (*principal.Principal, error) {
	for _, p := range r.byEmail {
		if p.TenantID == tenantID && p.ID == id {
			return p, nil
		}
	}
	return nil, principal.ErrNotFound()
}

func (r *fakePrincipalRepo) FindByEmail(_ context.Context, tenantID kernel.TenantID, email string) (*principal.Principal, error) {
	p, ok := r.byEmail[email]
	if !ok || p.TenantID != tenantID {
		return nil, principal.ErrNotFound()
	}
	return p, nil
}

func (r *fakePrincipalRepo) FindByOAuth(_ context.Context, _ kernel.TenantID, _ iam.Provider, _ string) (*principal.Principal, error) {
	return nil, principal.ErrNotFound()
}

func (r *fakePrincipalRepo) UpdateLastLogin(context.Context, kernel.TenantID, kernel.PrincipalID, time.Time) error {
	return nil
}

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
	calls    int
}

func (l *fakeLimiter) CheckAndIncrement(context.Context, ratelimit.Namespace, kernel.TenantID, string) (ratelimit.Decision, error) {
	l.calls++
	return l.decision, l.err
}

func allowAll() *fakeLimiter { return &fakeLimiter{decision: ratelimit.Decision{Allowed: true}} }

type fakeSender struct {
	mu   sync.Mutex
	sent []notify.EmailMessage
	err  error
}

func (s *fakeSender) SendEmail(_ context.Context, msg notify.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(plaintext string) (string, error) { return "hashed:" + plaintext, nil }
func (fakeHasher) Verify(plaintext, hash string) bool    { return hash == "hashed:"+plaintext }

type fakeRevoker struct {
	revoked []kernel.PrincipalID
	err     error
}

func (r *fakeRevoker) RevokeAllForPrincipal(_ context.Context, _ kernel.TenantID, id kernel.PrincipalID) error {
	if r.err != nil {
		return r.err
	}
	r.revoked = append(r.revoked, id)
	return nil
}

type fixture struct {
	svc     *resetsrv.Service
	resets  *fakeResetRepo
	sender  *fakeSender
	revoker *fakeRevoker
	limiter *fakeLimiter
	tenant  kernel.TenantID
	account *principal.Principal
}

func newFixture(t *testing.T, limiter *fakeLimiter) *fixture {
	t.Helper()
	tenant := kernel.NewTenantID("t1")
	account := principal.New(tenant, "user@example.com", "hashed:old-password")

	sender := &fakeSender{}
	mailer := notify.NewClient(sender)
	if err := mailer.RegisterTemplate(resetsrv.TemplateName, "Reset: {{.Link}} (expires in {{.ExpiresMinutes}}m)"); err != nil {
		t.Fatalf("register template: %v", err)
	}

	resets := newFakeResetRepo()
	revoker := &fakeRevoker{}
	svc := resetsrv.NewService(
		resets,
		&fakePrincipalRepo{byEmail: map[string]*principal.Principal{account.Email: account}},
		fakeHasher{},
		revoker,
		limiter,
		mailer,
		resetsrv.Config{TokenTTL: 30 * time.Minute, ResetBaseURL: "https://app.example.com/reset"},
	)
	return &fixture{
		svc:     svc,
		resets:  resets,
		sender:  sender,
		revoker: revoker,
		limiter: limiter,
		tenant:  tenant,
		account: account,
	}
}

func TestRequestReset_IssuesTokenAndSendsEmail(t *testing.T) {
	f := newFixture(t, allowAll())

	if err := f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4"); err != nil {
		t.Fatalf("request reset: %v", err)
	}

	issued := f.resets.issuedFor(f.account.ID)
	if len(issued) != 1 {
		t.Fatalf("expected one issued token, got %d", len(issued))
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(f.sender.sent))
	}
	msg := f.sender.sent[0]
	if msg.To[0] != f.account.Email {
		t.Fatalf("recipient: %v", msg.To)
	}
	if !strings.Contains(msg.TextBody, "https://app.example.com/reset?token="+issued[0].Token) {
		t.Fatalf("body missing reset link: %q", msg.TextBody)
	}
	if !strings.Contains(msg.TextBody, "30m") {
		t.Fatalf("body missing expiry: %q", msg.TextBody)
	}
}

func TestRequestReset_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t, allowAll())

	if err := f.svc.RequestReset(context.Background(), f.tenant, "nobody@example.com", "1.2.3.4"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("no email should be sent for an unknown address")
	}
}

func TestRequestReset_InactiveAccountIsSilent(t *testing.T) {
	f := newFixture(t, allowAll())
	f.account.Active = false

	if err := f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4"); err != nil {
		t.Fatalf("inactive account must not error: %v", err)
	}
	if len(f.resets.issuedFor(f.account.ID)) != 0 {
		t.Fatal("no token should be issued for an inactive account")
	}
}

func TestRequestReset_RateLimited(t *testing.T) {
	f := newFixture(t, &fakeLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: time.Minute}})

	err := f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4")
	if !errors.Is(err, ratelimit.ErrLimited(0)) {
		t.Fatalf("expected limited, got %v", err)
	}
	if len(f.resets.issuedFor(f.account.ID)) != 0 {
		t.Fatal("no token should be issued when throttled")
	}
}

func TestRequestReset_LimiterFailureDenies(t *testing.T) {
	f := newFixture(t, &fakeLimiter{err: errors.New("redis down")})

	err := f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4")
	if !errors.Is(err, ratelimit.ErrLimited(0)) {
		t.Fatalf("limiter failure must deny, got %v", err)
	}
}

func TestRequestReset_EmailFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, allowAll())
	f.sender.err = errors.New("smtp down")

	// The token exists either way; surfacing the failure would reveal that the
	// address is registered.
	if err := f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4"); err != nil {
		t.Fatalf("email failure must not surface: %v", err)
	}
	if len(f.resets.issuedFor(f.account.ID)) != 1 {
		t.Fatal("token should be issued despite email failure")
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t, allowAll())
	_ = f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4")
	tok := f.resets.issuedFor(f.account.ID)[0]

	v, err := f.svc.Validate(context.Background(), f.tenant, tok.Token)
	if err != nil {
		t.Fatalf("fresh token should validate: %v", err)
	}
	if v.Email != f.account.Email {
		t.Fatalf("validation email: %q", v.Email)
	}
	if !v.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Fatalf("validation expiry: %v", v.ExpiresAt)
	}

	if _, err := f.svc.Validate(context.Background(), f.tenant, "bogus"); !errors.Is(err, reset.ErrInvalidOrExpired()) {
		t.Fatalf("unknown token: %v", err)
	}

	f.resets.byVal[tok.Token].ExpiresAt = time.Now().Add(-time.Minute)
	if _, err := f.svc.Validate(context.Background(), f.tenant, tok.Token); !errors.Is(err, reset.ErrInvalidOrExpired()) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestConfirm_ConsumesOnceAndRevokesSessions(t *testing.T) {
	f := newFixture(t, allowAll())
	_ = f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4")
	tok := f.resets.issuedFor(f.account.ID)[0]

	if err := f.svc.Confirm(context.Background(), f.tenant, tok.Token, "brand-new-password"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := f.resets.hashes[f.account.ID]; got != "hashed:brand-new-password" {
		t.Fatalf("password hash not written: %q", got)
	}
	if len(f.revoker.revoked) != 1 || f.revoker.revoked[0] != f.account.ID {
		t.Fatalf("sessions not revoked: %v", f.revoker.revoked)
	}

	// Second redemption of the same token must fail.
	err := f.svc.Confirm(context.Background(), f.tenant, tok.Token, "another-password")
	if !errors.Is(err, reset.ErrInvalidOrExpired()) {
		t.Fatalf("reused token: %v", err)
	}
}

func TestConfirm_WeakPasswordLeavesTokenUsable(t *testing.T) {
	f := newFixture(t, allowAll())
	_ = f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4")
	tok := f.resets.issuedFor(f.account.ID)[0]

	err := f.svc.Confirm(context.Background(), f.tenant, tok.Token, "short")
	if !errors.Is(err, password.ErrTooWeak()) {
		t.Fatalf("expected weak password rejection, got %v", err)
	}

	// Policy failure must not burn the single-use token.
	if err := f.svc.Confirm(context.Background(), f.tenant, tok.Token, "brand-new-password"); err != nil {
		t.Fatalf("token should still be usable: %v", err)
	}
}

func TestConfirm_RevocationFailureSurfaces(t *testing.T) {
	f := newFixture(t, allowAll())
	f.revoker.err = errors.New("store down")
	_ = f.svc.RequestReset(context.Background(), f.tenant, f.account.Email, "1.2.3.4")
	tok := f.resets.issuedFor(f.account.ID)[0]

	if err := f.svc.Confirm(context.Background(), f.tenant, tok.Token, "brand-new-password"); err == nil {
		t.Fatal("revocation failure must surface")
	}
}
