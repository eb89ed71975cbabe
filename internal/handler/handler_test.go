package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"celulas/membership/internal/config"
	"celulas/membership/internal/metrics"
	"celulas/membership/internal/model"
	"celulas/membership/internal/repository"
	"celulas/membership/internal/service"
	"celulas/membership/pkg/crypto"
	jwtpkg "celulas/membership/pkg/jwt"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	crypto.SetCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	users  repository.UserRepository
	jwt    *jwtpkg.Manager
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	db, err := config.NewSQLiteDB(config.SQLiteConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := &config.Config{
		Invite: config.InviteConfig{
			Enabled:      true,
			DefaultTTL:   7 * 24 * time.Hour,
			MaxTTL:       90 * 24 * time.Hour,
			MaxUsesLimit: 500,
			LinkOrigin:   "https://celulas.example.org",
			LinkPath:     "/registro",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zap.NewNop()
	userRepo := repository.NewPGUserRepository(db)
	identityRepo := repository.NewPGIdentityRepository(db)
	groupRepo := repository.NewPGGroupRepository(db)
	codeRepo := repository.NewPGInvitationCodeRepository(db)
	stateStore := repository.NewMemoryStateStore()
	jwtManager := jwtpkg.NewManager("handler-test-signing-key-0123456789", "membership-test", 15*time.Minute, time.Hour)

	invitations := service.NewInvitationService(codeRepo, groupRepo, nil, cfg.Invite, logger)
	authService := service.NewAuthService(
		userRepo, identityRepo, invitations, service.NewProvisioner(userRepo, groupRepo),
		stateStore, jwtManager, cfg.Invite.Enabled, logger,
	)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	router := SetupRouter(cfg, logger, jwtManager, stateStore, reg,
		NewAuthHandler(authService),
		NewInvitationHandler(invitations, authService),
		NewAdminHandler(invitations, service.NewGroupService(groupRepo)),
	)
	return &testServer{router: router, users: userRepo, jwt: jwtManager}
}

// tokenFor stores a profile with role and returns an access token for it.
func (s *testServer) tokenFor(t *testing.T, role model.Role) string {
	t.Helper()
	email := uuid.NewString() + "@example.com"
	user := &model.User{Email: email, Role: role}
	identity := &model.UserIdentity{IdentityType: model.IdentityTypePassword, Identifier: email}
	if err := s.users.CreateWithIdentity(context.Background(), user, identity); err != nil {
		t.Fatalf("create %s: %v", role, err)
	}
	token, err := s.jwt.GenerateAccessToken(user.ID, string(role))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.tokenFor(t, model.RoleAdmin)

	status, env := s.do(t, http.MethodPost, "/api/v1/admin/groups", admin, gin.H{"name": "Célula Centro"})
	if status != http.StatusOK {
		t.Fatalf("create group: %d %s", status, env.Message)
	}
	var group model.Group
	decodeData(t, env, &group)

	status, env = s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes", admin, gin.H{
		"role":        "leader",
		"description": "Líder da célula centro",
		"max_uses":    1,
		"expires_at":  time.Now().Add(30 * time.Minute).UTC(),
		"group_id":    group.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("create code: %d %s", status, env.Message)
	}
	var created struct {
		ID            uuid.UUID `json:"id"`
		Code          string    `json:"code"`
		Link          string    `json:"link"`
		RemainingUses int       `json:"remaining_uses"`
	}
	decodeData(t, env, &created)
	if created.Link != "https://celulas.example.org/registro?code="+created.Code || created.RemainingUses != 1 {
		t.Fatalf("unexpected created code: %+v", created)
	}

	status, env = s.do(t, http.MethodGet, "/api/v1/invitations/"+strings.ToLower(created.Code), "", nil)
	if status != http.StatusOK {
		t.Fatalf("validate: %d %s", status, env.Message)
	}
	var preview struct {
		Role model.Role `json:"role"`
	}
	decodeData(t, env, &preview)
	if preview.Role != model.RoleLeader {
		t.Fatalf("expected leader preview, got %s", preview.Role)
	}

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "lider@example.com", "password": "s3cret-pass", "invite_code": created.Code,
	})
	if status != http.StatusOK {
		t.Fatalf("register: %d %s", status, env.Message)
	}
	var registered service.RegisterResult
	decodeData(t, env, &registered)
	if registered.Grant == nil || registered.Grant.Role != model.RoleLeader || registered.Grant.Degraded {
		t.Fatalf("unexpected grant: %+v", registered.Grant)
	}
	if registered.User.GroupID == nil || *registered.User.GroupID != group.ID {
		t.Fatalf("expected group affiliation, got %+v", registered.User)
	}

	wantMsg := service.ErrInvitationUnavailable.Error()
	status, env = s.do(t, http.MethodGet, "/api/v1/invitations/"+created.Code, "", nil)
	if status != http.StatusBadRequest || env.Message != wantMsg {
		t.Fatalf("spent code should be unavailable: %d %s", status, env.Message)
	}
	status, env = s.do(t, http.MethodGet, "/api/v1/invitations/DOES-NOT-EXIST", "", nil)
	if status != http.StatusBadRequest || env.Message != wantMsg {
		t.Fatalf("unknown code should read the same: %d %s", status, env.Message)
	}
	status, env = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "segundo@example.com", "password": "s3cret-pass", "invite_code": created.Code,
	})
	if status != http.StatusBadRequest || env.Message != wantMsg {
		t.Fatalf("second signup should be refused: %d %s", status, env.Message)
	}

	status, env = s.do(t, http.MethodGet, "/api/v1/admin/invitation-codes/"+created.ID.String()+"/redemptions", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("redemptions: %d %s", status, env.Message)
	}
	var redemptions []model.InvitationRedemption
	decodeData(t, env, &redemptions)
	if len(redemptions) != 1 || redemptions[0].RedeemerID != registered.User.ID || !redemptions[0].Provisioned {
		t.Fatalf("unexpected redemptions: %+v", redemptions)
	}

	status, env = s.do(t, http.MethodGet, "/api/v1/admin/invitation-codes?redeemable=true", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d %s", status, env.Message)
	}
	var redeemable []json.RawMessage
	decodeData(t, env, &redeemable)
	if len(redeemable) != 0 {
		t.Fatalf("spent code should not be listed as redeemable, got %d", len(redeemable))
	}
}

func TestDeactivatedCodeIsUnavailable(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.tokenFor(t, model.RolePastor)

	_, env := s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes", admin, gin.H{"role": "co_leader", "max_uses": 5})
	var created struct {
		ID   uuid.UUID `json:"id"`
		Code string    `json:"code"`
	}
	decodeData(t, env, &created)

	if status, env := s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes/"+created.ID.String()+"/deactivate", admin, nil); status != http.StatusOK {
		t.Fatalf("deactivate: %d %s", status, env.Message)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/invitations/"+created.Code, "", nil); status != http.StatusBadRequest {
		t.Fatalf("deactivated code should be unavailable, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes/"+uuid.NewString()+"/deactivate", admin, nil); status != http.StatusNotFound {
		t.Fatalf("unknown code should be 404, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes/"+created.ID.String()+"/send", admin, gin.H{"email": "ana@example.com"}); status != http.StatusServiceUnavailable {
		t.Fatalf("send without smtp should be 503, got %d", status)
	}
}

func TestCreateInvitationCodeValidation(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.tokenFor(t, model.RoleAdmin)

	tests := []struct {
		name string
		body gin.H
	}{
		{"member role", gin.H{"role": "member", "max_uses": 1}},
		{"admin role", gin.H{"role": "admin", "max_uses": 1}},
		{"missing max uses", gin.H{"role": "pastor"}},
		{"zero max uses", gin.H{"role": "pastor", "max_uses": 0}},
		{"past expiry", gin.H{"role": "pastor", "max_uses": 1, "expires_at": time.Now().Add(-time.Hour).UTC()}},
		{"group for pastor", gin.H{"role": "pastor", "max_uses": 1, "group_id": uuid.NewString()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes", admin, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", status, env.Message)
			}
		})
	}
}

func TestAdminRoutesRequireAdministrator(t *testing.T) {
	s := newTestServer(t, nil)

	if status, _ := s.do(t, http.MethodGet, "/api/v1/admin/invitation-codes", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("anonymous should be 401, got %d", status)
	}
	for _, role := range []model.Role{model.RoleMember, model.RoleLeader, model.RoleCoLeader} {
		if status, _ := s.do(t, http.MethodGet, "/api/v1/admin/invitation-codes", s.tokenFor(t, role), nil); status != http.StatusForbidden {
			t.Fatalf("%s should be 403, got %d", role, status)
		}
	}
}

func TestAdminAllowListGrantsAccess(t *testing.T) {
	var listed uuid.UUID
	s := newTestServer(t, func(cfg *config.Config) {
		listed = uuid.New()
		cfg.Admin.UserIDs = []string{listed.String()}
	})
	token, _ := s.jwt.GenerateAccessToken(listed, string(model.RoleMember))

	if status, env := s.do(t, http.MethodGet, "/api/v1/admin/groups", token, nil); status != http.StatusOK {
		t.Fatalf("allow-listed user should pass, got %d %s", status, env.Message)
	}
}

func TestRegisterWithoutInviteThenRedeem(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Invite.Enabled = false })
	admin := s.tokenFor(t, model.RoleAdmin)

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "ana@example.com", "password": "s3cret-pass"})
	if status != http.StatusOK {
		t.Fatalf("register: %d %s", status, env.Message)
	}
	var registered service.RegisterResult
	decodeData(t, env, &registered)

	_, env = s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes", admin, gin.H{"role": "pastor", "max_uses": 2})
	var created struct {
		Code string `json:"code"`
	}
	decodeData(t, env, &created)

	status, env = s.do(t, http.MethodPost, "/api/v1/invitations/redeem", registered.Tokens.AccessToken, gin.H{"code": created.Code})
	if status != http.StatusOK {
		t.Fatalf("redeem: %d %s", status, env.Message)
	}
	var grant service.Grant
	decodeData(t, env, &grant)
	if grant.Role != model.RolePastor {
		t.Fatalf("expected pastor grant, got %+v", grant)
	}

	status, env = s.do(t, http.MethodGet, "/api/v1/me", registered.Tokens.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("me: %d %s", status, env.Message)
	}
	var me model.User
	decodeData(t, env, &me)
	if me.Role != model.RolePastor {
		t.Fatalf("expected pastor profile, got %s", me.Role)
	}

	_, env = s.do(t, http.MethodPost, "/api/v1/admin/invitation-codes", admin, gin.H{"role": "co_leader", "max_uses": 1})
	var lower struct {
		Code string `json:"code"`
	}
	decodeData(t, env, &lower)
	status, env = s.do(t, http.MethodPost, "/api/v1/invitations/redeem", registered.Tokens.AccessToken, gin.H{"code": lower.Code})
	if status != http.StatusConflict || env.Message != service.ErrRoleDowngrade.Error() {
		t.Fatalf("lower role code should be refused with 409, got %d %s", status, env.Message)
	}

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ana@example.com", "password": "wrong-pass"})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad password should be 401, got %d", status)
	}
}

func TestRegisterRequiresInviteWhenEnabled(t *testing.T) {
	s := newTestServer(t, nil)
	status, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "ana@example.com", "password": "s3cret-pass"})
	if status != http.StatusBadRequest || env.Message != service.ErrInviteCodeRequired.Error() {
		t.Fatalf("expected invite required, got %d %s", status, env.Message)
	}
}

func TestValidateIsRateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.RateLimit.ValidatePerMinute = 3 })

	for i := 0; i < 3; i++ {
		if status, _ := s.do(t, http.MethodGet, "/api/v1/invitations/NOPE", "", nil); status != http.StatusBadRequest {
			t.Fatalf("request %d should reach the handler, got %d", i, status)
		}
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/invitations/NOPE", "", nil); status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	if status, _ := s.do(t, http.MethodGet, "/healthz", "", nil); status != http.StatusOK {
		t.Fatalf("healthz: %d", status)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"}`) {
		t.Fatalf("expected healthz request counter in metrics output")
	}
}
