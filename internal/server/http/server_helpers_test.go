package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/avk1987/crypto-vault/internal/service"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// In-memory collaborators backing the full router under test.

type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
}

var _ repository.UserRepository = (*memUsers)(nil)

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	m.byEmail[u.Email] = &cpy
	return nil
}
func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (m *memUsers) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			return true, nil
		}
	}
	return false, nil
}
func (m *memUsers) UpdateSecurity(_ context.Context, id uuid.UUID, twoFactor, loginAlerts bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			u.TwoFactorEnabled = twoFactor
			u.LoginAlertsEnabled = loginAlerts
			return nil
		}
	}
	return errs.ErrNotFound
}
func (m *memUsers) SetPanicHash(_ context.Context, id uuid.UUID, hash, salt []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			u.PanicHash = hash
			u.SaltPanic = salt
			return nil
		}
	}
	return errs.ErrNotFound
}
func (m *memUsers) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			now := time.Now()
			u.LastLoginAt = &now
			return nil
		}
	}
	return errs.ErrNotFound
}
func (m *memUsers) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, u := range m.byEmail {
		if u.ID == id {
			delete(m.byEmail, email)
			return nil
		}
	}
	return errs.ErrNotFound
}

type memChallenges struct {
	mu   sync.Mutex
	rows map[string]*model.Challenge
}

var _ repository.ChallengeRepository = (*memChallenges)(nil)

func cKey(email, purpose string) string { return email + "|" + purpose }

func (m *memChallenges) Upsert(_ context.Context, c *model.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *c
	m.rows[cKey(c.Email, c.Purpose)] = &cpy
	return nil
}

type memChallengeUpdater struct{ row *model.Challenge }

func (u *memChallengeUpdater) IncrementAttempts(context.Context) error { u.row.Attempts++; return nil }
func (u *memChallengeUpdater) MarkVerified(context.Context) error     { u.row.Verified = true; return nil }

func (m *memChallenges) GetLocked(ctx context.Context, email, purpose string, fn func(ctx context.Context, ch *model.Challenge, upd repository.ChallengeUpdater) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[cKey(email, purpose)]
	if !ok || row.Verified {
		return fn(ctx, nil, nil)
	}
	cpy := *row
	return fn(ctx, &cpy, &memChallengeUpdater{row: row})
}
func (m *memChallenges) Refresh(_ context.Context, email, purpose, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[cKey(email, purpose)]
	if !ok || row.Verified {
		return errs.ErrChallengeNotFound
	}
	row.Code = code
	row.ExpiresAt = expiresAt
	row.Attempts = 0
	return nil
}
func (m *memChallenges) DeleteByEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, row := range m.rows {
		if row.Email == email {
			delete(m.rows, k)
		}
	}
	return nil
}
func (m *memChallenges) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type memFiles struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*model.File
	grants *memGrants
}

var _ repository.FileRepository = (*memFiles)(nil)

func (m *memFiles) CreateWithOwnerGrant(ctx context.Context, f *model.File, ownerWrappedKey []byte) error {
	m.mu.Lock()
	cpy := *f
	cpy.CreatedAt = time.Now()
	m.rows[f.ID] = &cpy
	m.mu.Unlock()
	return m.grants.Create(ctx, &model.Grant{
		FileID: f.ID, UserID: f.OwnerID, Tier: model.TierOwner, WrappedKey: ownerWrappedKey,
	})
}
func (m *memFiles) Get(_ context.Context, id uuid.UUID) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *f
	return &c, nil
}
func (m *memFiles) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	if _, ok := m.rows[id]; !ok {
		m.mu.Unlock()
		return errs.ErrNotFound
	}
	delete(m.rows, id)
	m.mu.Unlock()
	m.grants.revokeAll(id)
	return nil
}
func (m *memFiles) ListOwned(_ context.Context, ownerID uuid.UUID) ([]model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.File
	for _, f := range m.rows {
		if f.OwnerID == ownerID {
			out = append(out, *f)
		}
	}
	return out, nil
}
func (m *memFiles) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for id, f := range m.rows {
		if f.CreatedAt.Before(cutoff) {
			keys = append(keys, f.BlobKey)
			delete(m.rows, id)
		}
	}
	return keys, nil
}

type memGrantKey struct {
	file uuid.UUID
	user uuid.UUID
}

type memGrants struct {
	mu    sync.Mutex
	rows  map[memGrantKey]*model.Grant
	files *memFiles
}

var _ repository.GrantRepository = (*memGrants)(nil)

func (m *memGrants) Create(_ context.Context, g *model.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memGrantKey{file: g.FileID, user: g.UserID}
	if _, ok := m.rows[k]; ok {
		return errs.ErrAlreadyGranted
	}
	cpy := *g
	m.rows[k] = &cpy
	return nil
}
func (m *memGrants) Get(_ context.Context, fileID, userID uuid.UUID) (*model.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.rows[memGrantKey{file: fileID, user: userID}]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *g
	return &c, nil
}
func (m *memGrants) ListForUser(_ context.Context, userID uuid.UUID) ([]model.FileSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.FileSummary
	for k, g := range m.rows {
		if k.user != userID {
			continue
		}
		s := model.FileSummary{ID: g.FileID, Tier: g.Tier, WrappedKey: g.WrappedKey}
		if f, ok := m.files.rows[g.FileID]; ok {
			s.EncName = f.EncName
			s.IV = f.IV
		}
		out = append(out, s)
	}
	return out, nil
}
func (m *memGrants) revokeAll(fileID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.file == fileID {
			delete(m.rows, k)
		}
	}
}

type memAudit struct {
	mu   sync.Mutex
	recs []model.AuditRecord
}

var _ repository.AuditRepository = (*memAudit)(nil)

func (m *memAudit) Append(_ context.Context, build func(prevHash string) (*model.AuditRecord, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := repository.GenesisHash
	if n := len(m.recs); n > 0 {
		prev = m.recs[n-1].Hash
	}
	rec, err := build(prev)
	if err != nil {
		return err
	}
	rec.Seq = int64(len(m.recs) + 1)
	m.recs = append(m.recs, *rec)
	return nil
}
func (m *memAudit) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]model.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditRecord
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.recs[i].UserID == userID {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}
func (m *memAudit) Walk(_ context.Context, fn func(rec *model.AuditRecord) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.recs {
		rec := m.recs[i]
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return nil
}

type memBlob struct{}

func (memBlob) PresignPut(_ context.Context, key string) (string, error) {
	return "https://blobs.test/put/" + key, nil
}
func (memBlob) PresignGet(_ context.Context, key string) (string, error) {
	return "https://blobs.test/get/" + key, nil
}
func (memBlob) Delete(context.Context, string) error { return nil }

type memSender struct {
	mu      sync.Mutex
	lastOTP string
}

func (s *memSender) SendOTP(_ context.Context, _, code, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOTP = code
	return nil
}
func (s *memSender) SendLoginAlert(context.Context, string, string, string, time.Time) error {
	return nil
}
func (s *memSender) SendShareNotice(context.Context, string, string) error { return nil }

func (s *memSender) otp() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOTP
}

type openLimiter struct{}

func (openLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}
func (openLimiter) Success(context.Context, string, []byte) error { return nil }
func (openLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}

type testEnv struct {
	srv    *Server
	router http.Handler
	sender *memSender
	users  *memUsers
}

const testSignKey = "test-sign-key"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	users := &memUsers{byEmail: map[string]*model.User{}}
	grants := &memGrants{rows: map[memGrantKey]*model.Grant{}}
	files := &memFiles{rows: map[uuid.UUID]*model.File{}, grants: grants}
	grants.files = files
	challenges := &memChallenges{rows: map[string]*model.Challenge{}}
	sender := &memSender{}
	audit := service.NewAuditChain(&memAudit{}, log)
	ledger := service.NewChallengeLedger(challenges, time.Minute, 3)

	auth := service.NewAuthService(users, files, grants, ledger, audit, sender, openLimiter{},
		[]byte(testSignKey), time.Hour, log)
	fileSvc := service.NewFileService(files, grants, users, audit, sender, memBlob{}, log)

	srv := New(Config{ListenAddr: ":0", GracefulShutdownDuration: time.Second},
		auth, fileSvc, audit, users, []byte(testSignKey), log)
	return &testEnv{srv: srv, router: srv.Router(), sender: sender, users: users}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
}

// registerAndLogin drives the full register/verify/login flow and returns the
// session token.
func registerAndLogin(t *testing.T, e *testEnv, email, password, panicPassword string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": email, "password": password, "panicPassword": panicPassword,
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("register: %d %s", rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodPost, "/api/auth/register/verify", "", map[string]string{
		"email": email, "code": e.sender.otp(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register verify: %d %s", rr.Code, rr.Body.String())
	}
	return loginFor(t, e, email, password)
}

func loginFor(t *testing.T, e *testEnv, email, password string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	var res sessionResponse
	decodeBody(t, rr, &res)
	if res.Token == "" {
		t.Fatalf("empty token")
	}
	return res.Token
}
