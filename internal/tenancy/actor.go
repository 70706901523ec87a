package tenancy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
)

// Actor is the authenticated caller of a commerce operation. It is produced
// upstream and trusted as-is.
type Actor struct {
	TenantID    uuid.UUID
	ActorID     uuid.UUID
	Role        enums.MemberRole
	Permissions []string
}

// Validate rejects actors missing the identifiers every operation needs.
func (a Actor) Validate() error {
	fields := map[string]string{}
	if a.TenantID == uuid.Nil {
		fields["tenantId"] = "is required"
	}
	if a.ActorID == uuid.Nil {
		fields["actorId"] = "is required"
	}
	if len(fields) > 0 {
		return pkgerrors.Validation("invalid actor", fields)
	}
	return nil
}

// PartitionName derives the tenant's schema name, e.g. tenant_3f2a...; the
// result only contains [a-z0-9_] so it is safe to use as an identifier.
func PartitionName(prefix string, tenantID uuid.UUID) string {
	if prefix == "" {
		prefix = "tenant_"
	}
	return fmt.Sprintf("%s%s", prefix, strings.ReplaceAll(tenantID.String(), "-", ""))
}
