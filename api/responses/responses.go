package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err with its public payload. The full chain and any
// Postgres diagnostics go to the log; the body only carries them in dev mode.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error, devMode bool) {
	if err == nil {
		err = errors.New("unknown error")
	}
	payload := pkgerrors.Render(err, devMode)
	status := pkgerrors.MetadataFor(payload.Code).HTTPStatus

	if logg != nil {
		dump := pkgerrors.Dump(err)
		ctx = logg.WithFields(ctx, map[string]any{
			"error":         dump.TopMessage,
			"error_code":    payload.Code,
			"error_reason":  payload.Reason,
			"error_chain":   dump.Chain,
			"pg_code":       dump.PGCode,
			"pg_detail":     dump.PGDetail,
			"pg_table":      dump.PGTable,
			"pg_constraint": dump.PGConstraint,
		})
		if status >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	writeJSON(w, status, types.ErrorEnvelope{
		Error: types.APIError{
			Code:    string(payload.Code),
			Reason:  string(payload.Reason),
			Message: payload.Message,
			Details: payload.Details,
			Chain:   payload.Chain,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
