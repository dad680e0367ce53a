package errorhandler

import (
	"context"
	"net/http"

	"github.com/mwork/mwork-rewards/internal/pkg/logger"
	"github.com/mwork/mwork-rewards/internal/pkg/response"
)

// HandleError logs err on the request logger and writes an error response.
// 5xx responses never echo err to the caller.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error()
	if status < http.StatusInternalServerError {
		event = logger.FromContext(ctx).Warn()
	}
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("error_code", code).
		Int("status_code", status).
		Msg(message)

	response.Error(w, status, code, message)
}

// HandleValidation logs field errors and writes a 422.
func HandleValidation(ctx context.Context, w http.ResponseWriter, fields map[string]string) {
	logger.FromContext(ctx).Warn().
		Interface("validation_errors", fields).
		Msg("Validation error")

	response.ValidationError(w, fields)
}
