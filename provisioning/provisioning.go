// Package provisioning creates simplified worker accounts on behalf of tenant applications.
package provisioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/authservice"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingFields   = errors.Wrapf(errors.ErrInvalidRequest, "Missing required fields: slug, pin, firstName, lastName, orgId")
	ErrProfileNotFound = errors.New("User exists but profile not found")
	ErrCreateAccount   = errors.New("Failed to create user account")
	ErrCreateProfile   = errors.New("Failed to create user profile")
)

const CreatedMessage = "Worker account created successfully"

// AccountAdmin manages Auth Service accounts with the service key.
type AccountAdmin interface {
	CreateUser(ctx context.Context, params authservice.CreateUserParams) (*authclient.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

var _ AccountAdmin = (*authservice.Client)(nil)

type WorkerRequest struct {
	Slug      string `json:"slug"`
	PIN       string `json:"pin"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	OrgID     string `json:"orgId"`
}

func (r WorkerRequest) complete() bool {
	for _, v := range []string{r.Slug, r.PIN, r.FirstName, r.LastName, r.OrgID} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

type WorkerResult struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Message string `json:"message"`
	// Created is false when the account already existed.
	Created bool `json:"-"`
}

type Service struct {
	admin        AccountAdmin
	dir          directory.Repo
	parentDomain string
}

func NewService(admin AccountAdmin, dir directory.Repo, parentDomain string) *Service {
	return &Service{
		admin:        admin,
		dir:          dir,
		parentDomain: strings.Trim(strings.ToLower(parentDomain), "."),
	}
}

// WorkerEmail is the staff address of a worker slug.
func (s *Service) WorkerEmail(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug)) + "@staff." + s.parentDomain
}

func alreadyExists(err error) bool {
	return errors.Is(err, errors.ErrAccountExists)
}

// CreateWorker creates the worker account, or reuses an existing one, then writes a simplified
// profile that must reset its PIN and a membership of the organisation.
func (s *Service) CreateWorker(ctx context.Context, req WorkerRequest) (*WorkerResult, error) {
	if !req.complete() {
		return nil, ErrMissingFields
	}

	email := s.WorkerEmail(req.Slug)
	fullName := strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName)

	created := true
	var userID string
	user, err := s.admin.CreateUser(ctx, authservice.CreateUserParams{
		Email:        email,
		Password:     req.PIN,
		EmailConfirm: true,
		UserMetadata: map[string]interface{}{
			"firstName":     req.FirstName,
			"lastName":      req.LastName,
			"is_simplified": true,
		},
	})
	switch {
	case err == nil:
		userID = user.ID
	case alreadyExists(err):
		created = false
		existing, lookupErr := s.dir.GetProfileByEmail(ctx, email)
		if lookupErr != nil {
			log.Err(lookupErr).Str("email", email).Msg("[provisioning CreateWorker] existing account has no profile")
			return nil, ErrProfileNotFound
		}
		userID = existing.ID
	default:
		log.Err(err).Str("email", email).Msg("[provisioning CreateWorker] create account failed")
		return nil, fmt.Errorf("%w: %v", ErrCreateAccount, err)
	}

	profileErr := s.dir.UpsertProfile(ctx, &directory.Profile{
		ID:                   userID,
		Email:                email,
		FullName:             fullName,
		AccountType:          directory.AccountSimplified,
		MustResetCredentials: true,
		IsActive:             true,
	})
	if profileErr == nil {
		profileErr = s.dir.AddMembership(ctx, directory.Membership{
			UserID:   userID,
			TenantID: req.OrgID,
			Role:     directory.RoleWorker,
		})
	}
	if profileErr != nil {
		log.Err(profileErr).Str("user_id", userID).Msg("[provisioning CreateWorker] profile write failed")
		if created {
			if delErr := s.admin.DeleteUser(ctx, userID); delErr != nil {
				log.Err(delErr).Str("user_id", userID).Msg("[provisioning CreateWorker] rollback of new account failed")
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCreateProfile, profileErr)
	}

	log.Info().Str("user_id", userID).Str("org_id", req.OrgID).Bool("created", created).Msg("worker account provisioned")
	return &WorkerResult{UserID: userID, Email: email, Message: CreatedMessage, Created: created}, nil
}
