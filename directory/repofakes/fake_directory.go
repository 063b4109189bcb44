package repofakes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/internal/errors"
)

var _ directory.Repo = (*FakeDirectory)(nil)

// FakeDirectory is an in-memory directory.Repo. The exported error fields are returned by the
// matching method when set and Delay is applied before every lookup.
type FakeDirectory struct {
	ProfileErr     error
	MembershipErr  error
	RolesErr       error
	UpsertErr      error
	ApplicationErr error
	Delay          time.Duration

	profiles     map[string]*directory.Profile
	memberships  map[string]map[string]directory.Membership
	roles        map[string][]directory.OperationalRole
	applications map[string]directory.Application
	calls        map[string]int
	lock         sync.RWMutex
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		profiles:     make(map[string]*directory.Profile),
		memberships:  make(map[string]map[string]directory.Membership),
		roles:        make(map[string][]directory.OperationalRole),
		applications: make(map[string]directory.Application),
		calls:        make(map[string]int),
	}
}

func (f *FakeDirectory) wait(ctx context.Context, op string) error {
	f.lock.Lock()
	f.calls[op]++
	delay := f.Delay
	f.lock.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Calls returns how many times op was invoked.
func (f *FakeDirectory) Calls(op string) int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.calls[op]
}

func (f *FakeDirectory) AddOperationalRole(role directory.OperationalRole) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.roles[role.UserID] = append(f.roles[role.UserID], role)
}

func (f *FakeDirectory) AddApplication(app directory.Application) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	f.applications[app.ID] = app
}

func (f *FakeDirectory) GetProfile(ctx context.Context, userID string) (*directory.Profile, error) {
	if err := f.wait(ctx, "get_profile"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *FakeDirectory) GetProfileByEmail(ctx context.Context, email string) (*directory.Profile, error) {
	if err := f.wait(ctx, "get_profile_by_email"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, p := range f.profiles {
		if strings.ToLower(p.Email) == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (f *FakeDirectory) UpsertProfile(ctx context.Context, p *directory.Profile) error {
	if err := f.wait(ctx, "upsert_profile"); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	if p == nil || p.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "profile id is required")
	}
	if p.AccountType == "" {
		p.AccountType = directory.AccountNormal
	}
	cp := *p
	cp.UpdatedAt = time.Now()
	if prev, ok := f.profiles[p.ID]; ok && !cp.HasConsent() {
		cp.AcceptedTermsAt = prev.AcceptedTermsAt
		cp.TermsVersion = prev.TermsVersion
		cp.MarketingConsent = prev.MarketingConsent
		cp.IPAddress = prev.IPAddress
	}
	f.profiles[p.ID] = &cp
	return nil
}

func (f *FakeDirectory) ClearMustReset(ctx context.Context, userID string) error {
	if err := f.wait(ctx, "clear_must_reset"); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return errors.ErrNotFound
	}
	p.MustResetCredentials = false
	return nil
}

func (f *FakeDirectory) ListMemberships(ctx context.Context, userID string) ([]directory.Membership, error) {
	if err := f.wait(ctx, "list_memberships"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.MembershipErr != nil {
		return nil, f.MembershipErr
	}
	out := make([]directory.Membership, 0, len(f.memberships[userID]))
	for _, m := range f.memberships[userID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TenantID < out[j].TenantID
	})
	return out, nil
}

func (f *FakeDirectory) AddMembership(ctx context.Context, m directory.Membership) error {
	if err := f.wait(ctx, "add_membership"); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	if m.UserID == "" || m.TenantID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "user id and tenant id are required")
	}
	if m.Role == "" {
		m.Role = directory.RoleMember
	}
	if f.memberships[m.UserID] == nil {
		f.memberships[m.UserID] = make(map[string]directory.Membership)
	}
	if _, exists := f.memberships[m.UserID][m.TenantID]; !exists {
		f.memberships[m.UserID][m.TenantID] = m
	}
	return nil
}

func (f *FakeDirectory) ListOperationalRoles(ctx context.Context, userID string) ([]directory.OperationalRole, error) {
	if err := f.wait(ctx, "list_operational_roles"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.RolesErr != nil {
		return nil, f.RolesErr
	}
	return append([]directory.OperationalRole(nil), f.roles[userID]...), nil
}

func (f *FakeDirectory) ListApplications(ctx context.Context) ([]directory.Application, error) {
	if err := f.wait(ctx, "list_applications"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.ApplicationErr != nil {
		return nil, f.ApplicationErr
	}
	out := make([]directory.Application, 0, len(f.applications))
	for _, a := range f.applications {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}
