package vendors

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/security"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	dsn := "file:vendors_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Vendor{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func validRegister() RegisterInput {
	return RegisterInput{
		Name:     "Himalayan Crafts",
		Email:    "Crafts@Example.com",
		Password: "s3cret-password",
		Phone:    "9800000000",
		District: "Kathmandu",
	}
}

func TestRegisterHashesPasswordAndStartsPending(t *testing.T) {
	svc := newTestService(t)

	vendor, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if vendor.Status != enums.VendorStatusPending {
		t.Fatalf("expected pending, got %s", vendor.Status)
	}
	if vendor.Email != "crafts@example.com" {
		t.Fatalf("expected lowercased email, got %q", vendor.Email)
	}
	if !strings.HasPrefix(vendor.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", vendor.PasswordHash)
	}
	ok, err := security.VerifyPassword("s3cret-password", vendor.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}
}

func TestRegisterRequiresDistrict(t *testing.T) {
	svc := newTestService(t)

	input := validRegister()
	input.District = " "

	_, err := svc.Register(context.Background(), input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validRegister()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, validRegister())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestApproveThenReApproveFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	vendor, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	approved, err := svc.Approve(ctx, vendor.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != enums.VendorStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	_, err = svc.Approve(ctx, vendor.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRejectPendingVendor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	vendor, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rejected, err := svc.Reject(ctx, vendor.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != enums.VendorStatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
}

func TestGetUnknownVendor(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
