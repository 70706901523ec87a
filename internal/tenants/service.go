// Package tenants is the control-plane registry of pharmacies: onboarding,
// subscription state and deactivation.
package tenants

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/pkg/db"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/validate"
)

const (
	defaultTrialPeriod = 14 * 24 * time.Hour
	defaultCounterName = "Main Counter"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// Router is the part of the tenancy router the registry needs.
type Router interface {
	AdminConnection() (*gorm.DB, error)
	TenantConnection(ctx context.Context, tenantID uuid.UUID) (*gorm.DB, error)
	CloseTenantConnection(ctx context.Context, tenantID uuid.UUID) error
}

// Service manages tenants on the admin partition.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*TenantDTO, error)
	Get(ctx context.Context, tenantID uuid.UUID) (*TenantDTO, error)
	ListActive(ctx context.Context) ([]TenantDTO, error)
	UpdateSubscription(ctx context.Context, tenantID uuid.UUID, input SubscriptionInput) (*TenantDTO, error)
	Deactivate(ctx context.Context, tenantID uuid.UUID) error
}

// Options tune onboarding.
type Options struct {
	SchemaPrefix string
	TrialPeriod  time.Duration
	Now          func() time.Time
}

type service struct {
	router Router
	opts   Options
	logg   *logger.Logger
}

// NewService builds the tenant registry.
func NewService(router Router, opts Options, logg *logger.Logger) (Service, error) {
	if router == nil {
		return nil, fmt.Errorf("tenancy router required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.TrialPeriod <= 0 {
		opts.TrialPeriod = defaultTrialPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{router: router, opts: opts, logg: logg}, nil
}

// Register provisions the tenant partition, seeds its default counter and
// then records the tenant and its owner. A failed registration closes the
// partition handle it opened.
func (s *service) Register(ctx context.Context, input RegisterInput) (*TenantDTO, error) {
	var errs validate.Errors
	errs.Struct(input)
	name := validate.Check(&errs, "name", validate.Trim(input.Name, true))
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if slug != "" && !slugPattern.MatchString(slug) {
		errs.Add("slug", "must be 2-63 lowercase letters, digits or dashes")
	}
	plan := input.Plan
	if plan == "" {
		plan = enums.SubscriptionPlanBasic
	}
	if !plan.IsValid() {
		errs.Add("plan", "is not supported")
	}
	email := strings.ToLower(strings.TrimSpace(input.OwnerEmail))
	ownerName := validate.Check(&errs, "ownerName", validate.Trim(input.OwnerName, true))
	if err := errs.Err("invalid tenant registration"); err != nil {
		return nil, err
	}

	admin, err := s.router.AdminConnection()
	if err != nil {
		return nil, err
	}
	repo := NewRepository(admin)
	if taken, err := repo.SlugTaken(ctx, slug); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check tenant slug")
	} else if taken {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "slug already registered")
	}
	if taken, err := repo.EmailTaken(ctx, email); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check owner email")
	} else if taken {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	}

	now := s.opts.Now().UTC()
	trialEnd := now.Add(s.opts.TrialPeriod)
	tenant := &models.Tenant{
		ID:                 uuid.New(),
		Name:               name,
		Slug:               slug,
		Plan:               plan,
		SubscriptionStatus: enums.SubscriptionStatusTrial,
		SubscriptionStart:  now,
		SubscriptionEnd:    &trialEnd,
		TaxRateBps:         input.TaxRateBps,
		IsActive:           true,
	}
	tenant.PartitionName = tenancy.PartitionName(s.opts.SchemaPrefix, tenant.ID)
	logCtx := s.logg.WithFields(ctx, map[string]any{"tenant_id": tenant.ID.String(), "partition": tenant.PartitionName})

	conn, err := s.router.TenantConnection(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	if _, err := EnsureDefaultCounter(ctx, conn, defaultCounterName); err != nil {
		s.abandon(logCtx, tenant.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: seed default counter")
	}

	owner := &models.User{
		TenantID:     tenant.ID,
		Email:        email,
		Name:         ownerName,
		Role:         enums.MemberRoleOwner,
		PasswordHash: input.OwnerPasswordHash,
		IsActive:     true,
	}
	err = db.RunInTx(ctx, admin, db.DefaultRetryPolicy(), func(tx *gorm.DB) error {
		txCtx := tx.Statement.Context
		txRepo := repo.WithTx(tx)
		if err := txRepo.CreateTenant(txCtx, tenant); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		if err := txRepo.CreateUser(txCtx, owner); err != nil {
			return fmt.Errorf("insert owner: %w", err)
		}
		return nil
	})
	if err != nil {
		s.abandon(logCtx, tenant.ID)
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "tenant already registered")
		}
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: register tenant")
		}
		return nil, err
	}

	s.logg.Info(logCtx, "tenant registered")
	dto := NewTenantDTO(tenant)
	dto.OwnerID = &owner.ID
	return &dto, nil
}

func (s *service) abandon(ctx context.Context, tenantID uuid.UUID) {
	if err := s.router.CloseTenantConnection(ctx, tenantID); err != nil {
		s.logg.Error(ctx, "close abandoned tenant partition", err)
	}
}

func (s *service) Get(ctx context.Context, tenantID uuid.UUID) (*TenantDTO, error) {
	tenant, err := s.find(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	dto := NewTenantDTO(tenant)
	return &dto, nil
}

// ListActive returns every active tenant.
func (s *service) ListActive(ctx context.Context) ([]TenantDTO, error) {
	admin, err := s.router.AdminConnection()
	if err != nil {
		return nil, err
	}
	rows, err := NewRepository(admin).ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list tenants")
	}
	out := make([]TenantDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewTenantDTO(&rows[i]))
	}
	return out, nil
}

// UpdateSubscription replaces the tenant's plan and subscription state.
func (s *service) UpdateSubscription(ctx context.Context, tenantID uuid.UUID, input SubscriptionInput) (*TenantDTO, error) {
	var errs validate.Errors
	errs.Struct(input)
	if input.Plan != "" && !input.Plan.IsValid() {
		errs.Add("plan", "is not supported")
	}
	if input.Status != "" && !input.Status.IsValid() {
		errs.Add("status", "is not supported")
	}
	if err := errs.Err("invalid subscription"); err != nil {
		return nil, err
	}

	admin, err := s.router.AdminConnection()
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"plan":                input.Plan,
		"subscription_status": input.Status,
		"subscription_end":    nil,
	}
	if input.End != nil {
		fields["subscription_end"] = input.End.UTC()
	}
	if err := NewRepository(admin).Update(ctx, tenantID, fields); err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update subscription")
	}
	return s.Get(ctx, tenantID)
}

// Deactivate marks the tenant inactive and releases its partition handle.
// Data is kept.
func (s *service) Deactivate(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := s.find(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.IsActive {
		admin, err := s.router.AdminConnection()
		if err != nil {
			return err
		}
		if err := NewRepository(admin).Update(ctx, tenantID, map[string]any{"is_active": false}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: deactivate tenant")
		}
	}
	if err := s.router.CloseTenantConnection(ctx, tenantID); err != nil {
		s.logg.Error(s.logg.WithTenantID(ctx, tenantID.String()), "close tenant partition", err)
	}
	s.logg.Info(s.logg.WithTenantID(ctx, tenantID.String()), "tenant deactivated")
	return nil
}

func (s *service) find(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.Validation("invalid tenant", map[string]string{"tenantId": "is required"})
	}
	admin, err := s.router.AdminConnection()
	if err != nil {
		return nil, err
	}
	tenant, err := NewRepository(admin).FindByID(ctx, tenantID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load tenant")
	}
	return tenant, nil
}
