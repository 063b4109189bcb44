package directory

import "time"

type AccountType string

const (
	AccountNormal AccountType = "normal"
	// AccountSimplified is a worker account that is only usable through an organisation membership.
	AccountSimplified AccountType = "simplified"
)

// Profile is the per-user record kept next to the Auth Service account.
type Profile struct {
	ID          string      `json:"id"`
	Email       string      `json:"email,omitempty"`
	FullName    string      `json:"full_name,omitempty"`
	AccountType AccountType `json:"account_type"`
	// MustResetCredentials forces a password or PIN change before anything else, e.g. on first login.
	MustResetCredentials bool      `json:"is_first_login"`
	IsActive             bool      `json:"is_active"`
	UpdatedAt            time.Time `json:"updated_at,omitempty"`

	// Consent recorded at self sign-up. A write without AcceptedTermsAt keeps the stored consent.
	AcceptedTermsAt  *time.Time `json:"accepted_terms_at,omitempty"`
	TermsVersion     string     `json:"terms_version,omitempty"`
	MarketingConsent bool       `json:"marketing_consent"`
	IPAddress        string     `json:"ip_address,omitempty"`
}

// HasConsent reports whether the profile carries an accepted terms record.
func (p *Profile) HasConsent() bool {
	return p != nil && p.AcceptedTermsAt != nil
}

func (p *Profile) IsSimplified() bool {
	return p != nil && p.AccountType == AccountSimplified
}

type RoleType string

const (
	RoleOwner  RoleType = "owner"
	RoleAdmin  RoleType = "admin"
	RoleMember RoleType = "member"
	RoleWorker RoleType = "worker"
)

// Membership ties a user to a tenant (organisation).
type Membership struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"organization_id"`
	Role     RoleType `json:"role"`
}

// HasTenant reports whether memberships include tenantID. An empty tenantID matches any membership.
func HasTenant(memberships []Membership, tenantID string) bool {
	for _, m := range memberships {
		if tenantID == "" || m.TenantID == tenantID {
			return true
		}
	}
	return false
}

const AppFleet = "fleet"

// OperationalRole is a per-application role held outside any tenant membership.
type OperationalRole struct {
	UserID string   `json:"user_id"`
	App    string   `json:"app"`
	Role   RoleType `json:"role"`
}

const (
	FleetRoleAdmin  RoleType = "admin"
	FleetRoleDriver RoleType = "driver"
)

type Application struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	DomainURL   string `json:"domain_url"`
	APIURL      string `json:"api_url,omitempty"`
	IsFree      bool   `json:"is_free"`
	IsActive    bool   `json:"is_active"`
}
