package domain

import "time"

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAnnual:
		return true
	default:
		return false
	}
}

type Product struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	CategoryID string    `json:"category_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	CategoryID string `json:"category_id,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
}

type Client struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ClientCreateRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type ClientUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

type Category struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name"`
}

// SaleLineItem is embedded in a Sale; UnitPriceCents is the product price
// snapshot taken when the sale was registered.
type SaleLineItem struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Sale is immutable once created. OccurredAt is assigned by the store at
// commit time; client clocks are not trusted for ordering.
type Sale struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	ClientID   string         `json:"client_id"`
	Items      []SaleLineItem `json:"items"`
	TotalCents int64          `json:"total_cents"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type SaleLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleRequest struct {
	ClientID string            `json:"client_id"`
	Items    []SaleLineRequest `json:"items"`
}

// Goal holds one per-period revenue target. Exactly one row exists per
// (owner, period); setting a target for an existing period updates in place.
type Goal struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Period      Period    `json:"period"`
	TargetCents int64     `json:"target_cents"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type GoalSetRequest struct {
	Period      Period `json:"period"`
	TargetCents int64  `json:"target_cents"`
}

type GoalProgress struct {
	Period      Period `json:"period"`
	ActualCents int64  `json:"actual_cents"`
	TargetCents int64  `json:"target_cents"`
	Percentage  int    `json:"percentage"`
}

// Bucket is one fixed time sub-window of a sales series. Buckets with no
// sales still appear with a zero amount so chart axes stay stable.
type Bucket struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}

type SalesSeries struct {
	Period  Period   `json:"period"`
	Date    string   `json:"date"`
	Buckets []Bucket `json:"buckets"`
}

type TopProduct struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

// UserAccount is the persistence model for auth credentials. Password holds
// a bcrypt hash, never plain text.
type UserAccount struct {
	ID        string
	Email     string
	Password  string
	Name      string
	CreatedAt time.Time
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	OwnerID     string `json:"owner_id"`
	ExpiresAt   string `json:"expires_at"`
}

// SaleRegisteredEvent is published after a fully applied sale.
type SaleRegisteredEvent struct {
	SaleID     string    `json:"sale_id"`
	OwnerID    string    `json:"owner_id"`
	TotalCents int64     `json:"total_cents"`
	ItemCount  int       `json:"item_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SalePartialCommitEvent is published when the sale record was persisted but
// one or more stock decrements failed afterwards. A reconciliation consumer
// is expected to re-apply or reverse the listed items out of band.
type SalePartialCommitEvent struct {
	SaleID     string                `json:"sale_id"`
	OwnerID    string                `json:"owner_id"`
	Failed     []FailedDecrementItem `json:"failed"`
	OccurredAt time.Time             `json:"occurred_at"`
}

type FailedDecrementItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}
