package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
)

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Errors aggregates field errors so a request fails once with every problem.
type Errors struct {
	fields map[string]string
	reason pkgerrors.Reason
}

// Add records msg for field. The first message for a field wins.
func (e *Errors) Add(field, msg string) {
	if msg == "" {
		return
	}
	if e.fields == nil {
		e.fields = map[string]string{}
	}
	if _, exists := e.fields[field]; exists {
		return
	}
	e.fields[field] = msg
}

// AddReason records a business-rule failure and tags the aggregate with reason.
func (e *Errors) AddReason(field, msg string, reason pkgerrors.Reason) {
	e.Add(field, msg)
	if e.reason == "" {
		e.reason = reason
	}
}

// Empty reports whether no errors were recorded.
func (e *Errors) Empty() bool {
	return len(e.fields) == 0
}

// Fields returns the recorded field names in stable order.
func (e *Errors) Fields() []string {
	out := make([]string, 0, len(e.fields))
	for field := range e.fields {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// Struct runs the struct tags on v and folds any failures into the aggregate.
func (e *Errors) Struct(v any) {
	err := structValidator.Struct(v)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		e.Add("_", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		e.Add(fieldPath(fe), validationMessage(fe))
	}
}

// Err returns nil when empty, otherwise a single VALIDATION_ERROR carrying the field map.
func (e *Errors) Err(message string) error {
	if e.Empty() {
		return nil
	}
	details := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		details[k] = v
	}
	err := pkgerrors.Validation(message, details)
	if e.reason != "" {
		err = err.WithReason(e.reason)
	}
	return err
}

// Check records r's error under field and returns its value.
func Check[T any](errs *Errors, field string, r Result[T]) T {
	if !r.OK() {
		errs.Add(field, r.Err)
	}
	return r.Value
}

// Struct validates v on its own and returns a VALIDATION_ERROR, or nil.
func Struct(v any) error {
	var errs Errors
	errs.Struct(v)
	return errs.Err("validation failed")
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "dive":
		return "is invalid"
	}
	return "is invalid"
}
