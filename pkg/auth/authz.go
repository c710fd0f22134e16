package auth

import (
	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
)

// RequireRole is the single capability check applied before each core
// operation. It rejects missing identities and role mismatches uniformly
// instead of branching per handler.
func RequireRole(actor models.Actor, roles ...string) error {
	if actor.ID == uuid.Nil || actor.HospitalID == uuid.Nil {
		return apperrors.Forbidden("missing identity")
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return apperrors.Forbidden("insufficient role")
}
