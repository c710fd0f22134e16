package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
)

func TestIssueAndValidateToken(t *testing.T) {
	manager, err := NewJWTManager("a-very-long-test-secret", "telecare", "telecare-staff", time.Hour)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	actor := models.Actor{
		ID:         uuid.New(),
		HospitalID: uuid.New(),
		Role:       models.RoleDoctor,
		Name:       "Dr. Rao",
	}
	token, err := manager.IssueToken(actor)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	got := claims.Actor()
	if got.ID != actor.ID || got.HospitalID != actor.HospitalID || got.Role != actor.Role {
		t.Fatalf("claims round-trip mismatch: %+v", got)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	manager, _ := NewJWTManager("a-very-long-test-secret", "telecare", "telecare-staff", time.Hour)
	other, _ := NewJWTManager("another-long-test-secret", "telecare", "telecare-staff", time.Hour)

	token, err := other.IssueToken(models.Actor{ID: uuid.New(), HospitalID: uuid.New(), Role: models.RoleNurse})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := manager.ValidateToken(token); err == nil {
		t.Fatal("expected signature rejection for foreign token")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	manager, _ := NewJWTManager("a-very-long-test-secret", "telecare", "telecare-staff", time.Hour)
	manager.nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := manager.IssueToken(models.Actor{ID: uuid.New(), HospitalID: uuid.New(), Role: models.RoleNurse})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	manager.nowFunc = time.Now
	if _, err := manager.ValidateToken(token); err == nil {
		t.Fatal("expected expired token rejection")
	}
}

func TestRequireRole(t *testing.T) {
	doctor := models.Actor{ID: uuid.New(), HospitalID: uuid.New(), Role: models.RoleDoctor}
	if err := RequireRole(doctor, models.RoleDoctor); err != nil {
		t.Fatalf("doctor should pass doctor check: %v", err)
	}
	if err := RequireRole(doctor, models.RoleNurse); apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := RequireRole(models.Actor{}, models.RoleNurse); apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Fatalf("expected forbidden for missing identity, got %v", err)
	}
}
