package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// User is the marketplace identity as seen by the risk engine. Verification
// timestamps are written by the onboarding service.
type User struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Email             string          `gorm:"column:email;not null;uniqueIndex"`
	Phone             *string         `gorm:"column:phone"`
	Country           string          `gorm:"column:country;type:char(2);not null"`
	FirstName         string          `gorm:"column:first_name;not null"`
	LastName          string          `gorm:"column:last_name;not null"`
	DateOfBirth       *time.Time      `gorm:"column:date_of_birth;type:date"`
	Nationality       *string         `gorm:"column:nationality;type:char(2)"`
	EmailVerifiedAt   *time.Time      `gorm:"column:email_verified_at"`
	PhoneVerifiedAt   *time.Time      `gorm:"column:phone_verified_at"`
	AddressVerifiedAt *time.Time      `gorm:"column:address_verified_at"`
	KYCStatus         enums.KYCStatus `gorm:"column:kyc_status;type:kyc_status;not null;default:'unverified'"`
	Role              enums.UserRole  `gorm:"column:role;type:user_role;not null;default:'user'"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// FullName joins first and last name for screening requests.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Vehicle struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID  uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	VIN       string              `gorm:"column:vin;type:char(17);not null;index"`
	Make      string              `gorm:"column:make;not null"`
	Model     string              `gorm:"column:model;not null"`
	Year      int                 `gorm:"column:year;not null"`
	Price     decimal.Decimal     `gorm:"column:price;type:numeric(14,2);not null"`
	Status    enums.VehicleStatus `gorm:"column:status;type:vehicle_status;not null;default:'active'"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vehicle) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

type Dealer struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (d *Dealer) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
