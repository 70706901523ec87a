package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/pkg/db/dbtest"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
)

func newTestService(t *testing.T) (Service, *tenancy.Router, *gorm.DB) {
	t.Helper()
	admin := dbtest.OpenAdmin(t)
	router, err := tenancy.NewRouter(admin, &tenancy.SQLiteDialer{}, tenancy.Options{}, logger.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = router.CloseAll(context.Background()) })

	svc, err := NewService(router, Options{}, logger.Nop())
	require.NoError(t, err)
	return svc, router, admin
}

func registration(slug, email string) RegisterInput {
	return RegisterInput{
		Name:              "Green Cross Pharmacy",
		Slug:              slug,
		OwnerName:         "Meera Iyer",
		OwnerEmail:        email,
		OwnerPasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
	}
}

func TestRegisterProvisionsPartitionAndOwner(t *testing.T) {
	svc, router, admin := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Register(ctx, registration("green-cross", "Owner@GreenCross.test"))
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusTrial, tenant.SubscriptionStatus)
	assert.Equal(t, enums.SubscriptionPlanBasic, tenant.Plan)
	assert.Equal(t, tenancy.PartitionName("", tenant.ID), tenant.PartitionName)
	require.NotNil(t, tenant.SubscriptionEnd)
	assert.WithinDuration(t, tenant.SubscriptionStart.Add(defaultTrialPeriod), *tenant.SubscriptionEnd, time.Second)
	require.NotNil(t, tenant.OwnerID)

	var owner models.User
	dbtest.MustReload(t, admin, &owner, *tenant.OwnerID)
	assert.Equal(t, "owner@greencross.test", owner.Email)
	assert.Equal(t, enums.MemberRoleOwner, owner.Role)
	assert.Equal(t, tenant.ID, owner.TenantID)

	assert.Equal(t, 1, router.Len())
	conn, err := router.TenantConnection(ctx, tenant.ID)
	require.NoError(t, err)
	var counter models.Counter
	require.NoError(t, conn.Where("is_default = ?", true).First(&counter).Error)
	assert.Equal(t, defaultCounterName, counter.Name)
	assert.True(t, counter.IsActive)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, router, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, registration("city-meds", "a@city.test"))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registration("city-meds", "b@city.test"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	_, err = svc.Register(ctx, registration("city-meds-2", "A@city.test"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 1, router.Len())
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, router, _ := newTestService(t)
	input := registration("Not A Slug!", "nope")
	input.Plan = "platinum"
	input.OwnerName = "  "

	_, err := svc.Register(context.Background(), input)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	fields := typed.Details().(map[string]string)
	for _, field := range []string{"slug", "plan", "ownerEmail", "ownerName"} {
		assert.Contains(t, fields, field)
	}
	assert.Zero(t, router.Len())
}

func TestDeactivateClosesPartitionAndHidesTenant(t *testing.T) {
	svc, router, _ := newTestService(t)
	ctx := context.Background()
	first, err := svc.Register(ctx, registration("first-pharm", "one@pharm.test"))
	require.NoError(t, err)
	second, err := svc.Register(ctx, registration("second-pharm", "two@pharm.test"))
	require.NoError(t, err)
	require.Equal(t, 2, router.Len())

	require.NoError(t, svc.Deactivate(ctx, first.ID))
	require.NoError(t, svc.Deactivate(ctx, first.ID))
	assert.Equal(t, 1, router.Len())

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.True(t, pkgerrors.IsCode(svc.Deactivate(ctx, uuid.New()), pkgerrors.CodeNotFound))
}

func TestUpdateSubscription(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenant, err := svc.Register(ctx, registration("upgrade-me", "up@pharm.test"))
	require.NoError(t, err)

	end := time.Date(2027, 10, 15, 0, 0, 0, 0, time.UTC)
	updated, err := svc.UpdateSubscription(ctx, tenant.ID, SubscriptionInput{
		Plan:   enums.SubscriptionPlanPremium,
		Status: enums.SubscriptionStatusActive,
		End:    &end,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionPlanPremium, updated.Plan)
	assert.Equal(t, enums.SubscriptionStatusActive, updated.SubscriptionStatus)
	require.NotNil(t, updated.SubscriptionEnd)
	assert.True(t, end.Equal(*updated.SubscriptionEnd))

	_, err = svc.UpdateSubscription(ctx, tenant.ID, SubscriptionInput{Plan: enums.SubscriptionPlanBasic, Status: "frozen"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.UpdateSubscription(ctx, uuid.New(), SubscriptionInput{Plan: enums.SubscriptionPlanBasic, Status: enums.SubscriptionStatusExpired})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
