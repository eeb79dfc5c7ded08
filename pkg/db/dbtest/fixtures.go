package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// User inserts a verified German user, then applies mutate before saving.
func User(t testing.TB, db *gorm.DB, mutate func(*models.User)) *models.User {
	t.Helper()
	now := time.Now().UTC()
	phone := "+4915100000000"
	user := &models.User{
		ID:                uuid.New(),
		Country:           "DE",
		FirstName:         "Test",
		LastName:          "User",
		Phone:             &phone,
		EmailVerifiedAt:   &now,
		PhoneVerifiedAt:   &now,
		AddressVerifiedAt: &now,
		KYCStatus:         enums.KYCStatusVerified,
		Role:              enums.UserRoleUser,
		CreatedAt:         now.AddDate(-1, 0, 0),
	}
	user.Email = user.ID.String() + "@example.com"
	if mutate != nil {
		mutate(user)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// Vehicle inserts an active listing.
func Vehicle(t testing.TB, db *gorm.DB, sellerID uuid.UUID, mutate func(*models.Vehicle)) *models.Vehicle {
	t.Helper()
	vehicle := &models.Vehicle{
		SellerID:  sellerID,
		VIN:       "WVWZZZ1JZXW" + uuid.NewString()[:6],
		Make:      "Volkswagen",
		Model:     "Golf",
		Year:      time.Now().UTC().Year() - 3,
		Price:     decimal.NewFromInt(20000),
		Status:    enums.VehicleStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if mutate != nil {
		mutate(vehicle)
	}
	if err := db.Create(vehicle).Error; err != nil {
		t.Fatalf("create vehicle: %v", err)
	}
	return vehicle
}

// Transaction inserts a pending EUR transaction with a unique reference.
func Transaction(t testing.TB, db *gorm.DB, buyerID, sellerID, vehicleID uuid.UUID, mutate func(*models.Transaction)) *models.Transaction {
	t.Helper()
	txn := &models.Transaction{
		ID:               uuid.New(),
		BuyerID:          buyerID,
		SellerID:         sellerID,
		VehicleID:        vehicleID,
		Amount:           decimal.NewFromInt(20000),
		Currency:         "EUR",
		Status:           enums.TransactionStatusPending,
		EscrowAccountID:  "escrow-main",
		InspectionResult: enums.InspectionResultPending,
		CreatedAt:        time.Now().UTC(),
	}
	txn.PaymentReference = "AE-" + txn.ID.String()[:8]
	if mutate != nil {
		mutate(txn)
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return txn
}

// Payment inserts a submitted deposit for txn.
func Payment(t testing.TB, db *gorm.DB, txn *models.Transaction, mutate func(*models.Payment)) *models.Payment {
	t.Helper()
	buyer := txn.BuyerID
	payment := &models.Payment{
		TransactionID: txn.ID,
		PayerID:       &buyer,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Type:          enums.PaymentTypeDeposit,
		Status:        enums.PaymentStatusSubmitted,
		CreatedAt:     time.Now().UTC(),
	}
	if mutate != nil {
		mutate(payment)
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return payment
}
