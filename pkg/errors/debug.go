package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-side view of an error chain, including Postgres
// diagnostics when the driver exposes them.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Reason     Reason `json:"reason,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}

	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Reason = te.Reason()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}

	return d
}

// Payload is the caller-facing shape of a failure.
type Payload struct {
	Code    Code     `json:"code"`
	Reason  Reason   `json:"reason,omitempty"`
	Message string   `json:"message"`
	Details any      `json:"details,omitempty"`
	Chain   []string `json:"chain,omitempty"`
}

// Render converts any error into its public payload. Untyped errors collapse to
// INTERNAL_ERROR; the error chain is only attached in dev mode.
func Render(err error, devMode bool) Payload {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := As(err)
	if typed == nil {
		typed = Wrap(CodeInternal, err, "unexpected error")
	}
	meta := MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case CodeValidation, CodeNotFound, CodeConflict, CodeStateConflict:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := Payload{
		Code:    typed.Code(),
		Reason:  typed.Reason(),
		Message: msg,
	}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}
	if devMode {
		payload.Chain = Dump(err).Chain
	}
	return payload
}
