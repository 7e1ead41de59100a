package core

import (
	"time"

	"github.com/google/uuid"
)

// Vendor represents a supplier of goods or services.
type Vendor struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	Phone            string    `db:"phone" json:"phone"`
	Address          string    `db:"address" json:"address"`
	PaymentTermsDays int       `db:"payment_terms_days" json:"payment_terms_days"`
	Status           string    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// VendorInput holds the fields accepted when creating a vendor.
// PaymentTermsDays defaults to 30.
type VendorInput struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	PaymentTermsDays int    `json:"payment_terms_days"`
}
