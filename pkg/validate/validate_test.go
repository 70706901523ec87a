package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
)

func TestMoneyRoundsToCents(t *testing.T) {
	r := Money(decimal.RequireFromString("12.345"))
	require.True(t, r.OK())
	assert.Equal(t, int64(1235), r.Value)

	assert.Equal(t, int64(15000), Money(decimal.NewFromInt(150)).Value)
	assert.False(t, Money(decimal.NewFromInt(-1)).OK())

	parsed := ParseMoney(" 99.999 ")
	require.True(t, parsed.OK())
	assert.Equal(t, int64(10000), parsed.Value)
	assert.False(t, ParseMoney("abc").OK())

	assert.True(t, FromCents(12345).Equal(decimal.RequireFromString("123.45")))
}

func TestIntegerNormalisers(t *testing.T) {
	assert.False(t, PositiveInt(0).OK())
	assert.True(t, PositiveInt(3).OK())
	assert.True(t, NonNegativeInt(0).OK())
	assert.False(t, NonNegativeInt(-2).OK())
}

func TestTrimAndDate(t *testing.T) {
	assert.Equal(t, "abc", Trim("  abc ", true).Value)
	assert.False(t, Trim("   ", true).OK())
	assert.Nil(t, OptionalTrim(ptr("  ")).Value)

	d := Date("2027-03-01")
	require.True(t, d.OK())
	assert.Equal(t, time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC), d.Value)
	assert.False(t, Date("03/01/2027").OK())
}

type lineInput struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type orderInput struct {
	Name  string      `json:"name" validate:"required"`
	Items []lineInput `json:"items" validate:"required,min=1,dive"`
}

func TestErrorsAggregatesEveryField(t *testing.T) {
	var errs Errors
	errs.Struct(orderInput{Items: []lineInput{{Quantity: 0}}})
	amount := Check(&errs, "amountPaid", Money(decimal.NewFromInt(-5)))
	assert.Equal(t, int64(0), amount)

	err := errs.Err("invalid order")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details := typed.Details().(map[string]string)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be greater than 0", details["items[0].quantity"])
	assert.Equal(t, "must not be negative", details["amountPaid"])
	assert.Equal(t, []string{"amountPaid", "items[0].quantity", "name"}, errs.Fields())
}

func TestErrorsReasonAndEmpty(t *testing.T) {
	var errs Errors
	assert.NoError(t, errs.Err("nothing"))

	errs.AddReason("items", "only 2 units available", pkgerrors.ReasonInsufficientStock)
	errs.Add("items", "ignored second message")
	typed := pkgerrors.As(errs.Err("invalid sale"))
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.ReasonInsufficientStock, typed.Reason())
	assert.Equal(t, "only 2 units available", typed.Details().(map[string]string)["items"])
}

func TestStructHelper(t *testing.T) {
	assert.NoError(t, Struct(orderInput{Name: "x", Items: []lineInput{{Quantity: 1}}}))
	assert.True(t, pkgerrors.IsCode(Struct(orderInput{}), pkgerrors.CodeValidation))
}

func ptr(s string) *string { return &s }
