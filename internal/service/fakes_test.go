package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"celulas/membership/internal/config"
	"celulas/membership/internal/model"
	"celulas/membership/internal/repository"
)

var baseTime = time.Unix(1_700_000_000, 0).UTC()

// fakeCodeRepo evaluates the redemption predicate under one lock, the same
// guarantee the SQL conditional update gives.
type fakeCodeRepo struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*model.InvitationCode
	redemptions []model.InvitationRedemption
	createErrs  []error
	creates     int
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{byID: map[uuid.UUID]*model.InvitationCode{}}
}

func (r *fakeCodeRepo) Create(_ context.Context, code *model.InvitationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range r.byID {
		if existing.Code == code.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	stored := *code
	r.byID[code.ID] = &stored
	return nil
}

func (r *fakeCodeRepo) GetByID(_ context.Context, id uuid.UUID) (*model.InvitationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeCodeRepo) GetActiveByCode(_ context.Context, code string) (*model.InvitationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.byID {
		if inv.Code == code && inv.IsActive {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCodeRepo) List(_ context.Context, filter repository.InvitationCodeFilter) ([]model.InvitationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.InvitationCode
	for _, inv := range r.byID {
		if filter.RedeemableAt != nil && !inv.Redeemable(*filter.RedeemableAt) {
			continue
		}
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *fakeCodeRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	inv.IsActive = false
	return nil
}

func (r *fakeCodeRepo) Redeem(_ context.Context, id, redeemerID uuid.UUID, now time.Time) (*model.InvitationRedemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok || !inv.Redeemable(now) {
		return nil, nil
	}
	inv.CurrentUses++
	inv.UsedBy = &redeemerID
	inv.UsedAt = &now
	red := model.InvitationRedemption{
		ID: uuid.New(), CodeID: id, RedeemerID: redeemerID, RedeemedAt: now, Provisioned: true,
	}
	r.redemptions = append(r.redemptions, red)
	return &red, nil
}

func (r *fakeCodeRepo) MarkUnprovisioned(_ context.Context, redemptionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.redemptions {
		if r.redemptions[i].ID == redemptionID {
			r.redemptions[i].Provisioned = false
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeCodeRepo) ListRedemptions(_ context.Context, codeID uuid.UUID) ([]model.InvitationRedemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.InvitationRedemption
	for _, red := range r.redemptions {
		if red.CodeID == codeID {
			out = append(out, red)
		}
	}
	return out, nil
}

type fakeGroupRepo struct {
	mu     sync.Mutex
	groups map[uuid.UUID]*model.Group
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: map[uuid.UUID]*model.Group{}}
}

func (r *fakeGroupRepo) Create(_ context.Context, group *model.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.Name == group.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	stored := *group
	r.groups[group.ID] = &stored
	return nil
}

func (r *fakeGroupRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGroupRepo) List(_ context.Context) ([]model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// fakeUserRepo also serves as the IdentityRepository.
type fakeUserRepo struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*model.User
	identities map[string]*model.UserIdentity
	groups     *fakeGroupRepo
	assignErr  error
}

func newFakeUserRepo(groups *fakeGroupRepo) *fakeUserRepo {
	return &fakeUserRepo{
		users:      map[uuid.UUID]*model.User{},
		identities: map[string]*model.UserIdentity{},
		groups:     groups,
	}
}

func (r *fakeUserRepo) CreateWithIdentity(_ context.Context, user *model.User, identity *model.UserIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(identity.IdentityType) + ":" + identity.Identifier
	if _, ok := r.identities[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	identity.ID = uuid.New()
	identity.UserID = user.ID
	storedUser := *user
	storedIdentity := *identity
	r.users[user.ID] = &storedUser
	r.identities[key] = &storedIdentity
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) AssignRole(_ context.Context, userID uuid.UUID, role model.Role, groupID *uuid.UUID, leadGroup bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assignErr != nil {
		return r.assignErr
	}
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Role = role
	u.GroupID = groupID
	r.groups.mu.Lock()
	defer r.groups.mu.Unlock()
	for id, g := range r.groups.groups {
		if g.LeaderID != nil && *g.LeaderID == userID && (!leadGroup || groupID == nil || id != *groupID) {
			g.LeaderID = nil
		}
	}
	if leadGroup && groupID != nil {
		if g, ok := r.groups.groups[*groupID]; ok {
			if g.LeaderID != nil && *g.LeaderID != userID {
				if prev, ok := r.users[*g.LeaderID]; ok && prev.Role == model.RoleLeader {
					prev.Role = model.RoleCoLeader
				}
			}
			leader := userID
			g.LeaderID = &leader
		}
	}
	return nil
}

func (r *fakeUserRepo) GetByTypeAndIdentifier(_ context.Context, idType model.IdentityType, identifier string) (*model.UserIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[string(idType)+":"+identifier]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *identity
	return &cp, nil
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func testInviteConfig() config.InviteConfig {
	return config.InviteConfig{
		Enabled:      true,
		DefaultTTL:   7 * 24 * time.Hour,
		MaxTTL:       90 * 24 * time.Hour,
		MaxUsesLimit: 500,
		LinkOrigin:   "https://celulas.example.org/",
		LinkPath:     "/registro",
	}
}

// newTestInvitationService returns the concrete type so tests can move the clock.
func newTestInvitationService(codes *fakeCodeRepo, groups *fakeGroupRepo, mailer MailSender) *invitationService {
	svc := NewInvitationService(codes, groups, mailer, testInviteConfig(), zap.NewNop()).(*invitationService)
	svc.now = func() time.Time { return baseTime }
	return svc
}
