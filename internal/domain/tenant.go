package domain

import "time"

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

type Tenant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    TenantStatus `json:"status"`
	Industry  string       `json:"industry,omitempty"`
	TaxID     string       `json:"taxId,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// BusinessAddress is the postal address a tenant registers with.
type BusinessAddress struct {
	Street  string `json:"street"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zipCode"`
}

type SubscriptionTier string

const (
	TierStarter      SubscriptionTier = "STARTER"
	TierProfessional SubscriptionTier = "PROFESSIONAL"
	TierEnterprise   SubscriptionTier = "ENTERPRISE"
)

func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

type Subscription struct {
	Tier  SubscriptionTier `json:"tier"`
	Seats int              `json:"seats"`
}

// TenantProfile carries the optional registration details stored next to a tenant.
type TenantProfile struct {
	Address      *BusinessAddress `json:"address,omitempty"`
	Subscription *Subscription    `json:"subscription,omitempty"`
}
