// Package access decides what an authenticated subject may do next, based on their directory
// profile, tenant memberships and operational roles.
package access

import (
	"context"

	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/internal/telemetry"
	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

type Verdict int

const (
	Allow Verdict = iota
	Deny
	MustReset
	RedirectExternal
)

func (v Verdict) String() string {
	switch v {
	case Deny:
		return "deny"
	case MustReset:
		return "must_reset"
	case RedirectExternal:
		return "redirect_external"
	}
	return "allow"
}

// ReasonNoMembership is the marker carried by a Deny decision.
const ReasonNoMembership = "no_membership"

type Request struct {
	SubjectID string
	// TargetTenant optionally narrows the membership check to one tenant.
	TargetTenant string
}

// Decision is the outcome of Resolve. When Deferred is true the membership check could not
// reach a definitive answer and Err carries a recoverable error; the verdict is then never Deny.
type Decision struct {
	Verdict     Verdict
	Reason      string
	Destination navigation.Destination
	Deferred    bool
	Err         error

	Profile     *directory.Profile
	Memberships []directory.Membership
}

type Options struct {
	FleetAppURL string
	Metrics     *metrics.Metrics
}

type Resolver struct {
	repo        directory.Repo
	fleetAppURL string
	metrics     *metrics.Metrics
}

func NewResolver(repo directory.Repo, opts Options) *Resolver {
	return &Resolver{
		repo:        repo,
		fleetAppURL: opts.FleetAppURL,
		metrics:     opts.Metrics,
	}
}

type lookups struct {
	profile     *directory.Profile
	profileErr  error
	memberships []directory.Membership
	memberErr   error
	roles       []directory.OperationalRole
	rolesErr    error
}

// Resolve looks up the subject concurrently and applies, in order: deny (simplified account
// without a matching membership), must-reset, external redirect, allow.
func (r *Resolver) Resolve(ctx context.Context, req Request) Decision {
	ctx, span := telemetry.Tracer().Start(ctx, "access.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("subject.id", req.SubjectID))

	l := r.lookup(ctx, req.SubjectID)
	d := r.decide(ctx, req, l)

	span.SetAttributes(
		attribute.String("access.verdict", d.Verdict.String()),
		attribute.Bool("access.deferred", d.Deferred),
	)
	if d.Err != nil {
		span.SetStatus(codes.Error, d.Err.Error())
	}
	r.metrics.AccessDecision(d.Verdict.String(), d.Deferred)
	return d
}

func (r *Resolver) lookup(ctx context.Context, subjectID string) lookups {
	var l lookups
	g, gctx := errgroup.WithContext(ctx)
	// Every lookup records its own error so one failure never cancels the others.
	g.Go(func() error {
		l.profile, l.profileErr = r.repo.GetProfile(gctx, subjectID)
		return nil
	})
	g.Go(func() error {
		l.memberships, l.memberErr = r.repo.ListMemberships(gctx, subjectID)
		return nil
	})
	g.Go(func() error {
		l.roles, l.rolesErr = r.repo.ListOperationalRoles(gctx, subjectID)
		return nil
	})
	_ = g.Wait()
	return l
}

func canceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func (r *Resolver) decide(ctx context.Context, req Request, l lookups) Decision {
	d := Decision{Verdict: Allow, Memberships: l.memberships}

	profile := l.profile
	switch {
	case l.profileErr == nil:
		d.Profile = profile
	case errors.Is(l.profileErr, errors.ErrNotFound):
		profile = nil
	case canceled(ctx, l.profileErr):
		profile = nil
	default:
		log.Warn().Err(errors.Wrapf(errors.ErrProfileLookup, "%v", l.profileErr)).
			Str("subject", req.SubjectID).
			Msg("[access Resolve] profile lookup failed, continuing without it")
		profile = nil
	}

	if profile.IsSimplified() {
		switch {
		case l.memberErr == nil:
			if !directory.HasTenant(l.memberships, req.TargetTenant) {
				return Decision{
					Verdict:     Deny,
					Reason:      ReasonNoMembership,
					Profile:     profile,
					Memberships: l.memberships,
				}
			}
		case canceled(ctx, l.memberErr):
			d.Deferred = true
		default:
			d.Deferred = true
			d.Err = errors.Wrapf(errors.ErrTransientNetwork, "membership lookup for %s: %v", req.SubjectID, l.memberErr)
			log.Warn().Err(l.memberErr).Str("subject", req.SubjectID).Msg("[access Resolve] membership lookup failed, deferring denial check")
		}
	}

	if profile != nil && profile.MustResetCredentials {
		d.Verdict = MustReset
		return d
	}

	if dest, ok := r.external(req.SubjectID, l); ok {
		d.Verdict = RedirectExternal
		d.Destination = dest
	}
	return d
}

// external applies only when memberships are known to be empty; any lookup error skips it.
func (r *Resolver) external(subjectID string, l lookups) (navigation.Destination, bool) {
	if r.fleetAppURL == "" || l.rolesErr != nil || l.memberErr != nil || len(l.memberships) > 0 {
		if l.rolesErr != nil {
			log.Debug().Err(l.rolesErr).Str("subject", subjectID).Msg("[access Resolve] operational roles unavailable")
		}
		return navigation.None, false
	}
	for _, role := range l.roles {
		if role.App != directory.AppFleet {
			continue
		}
		if role.Role == directory.FleetRoleAdmin || role.Role == directory.FleetRoleDriver {
			return navigation.External(r.fleetAppURL), true
		}
	}
	return navigation.None, false
}
