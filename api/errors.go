package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/fintrack/ledger"
)

// Error is what resolvers return to graphql-go. Extensions surfaces the
// ledger error code as errors[].extensions.code.
type Error struct {
	Message string
	Code    string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.Code}
}

const storageFailureMessage = "the request could not be completed; nothing was changed"

// toGraphQLError classifies err. Client errors keep their message; storage
// and unexpected failures are logged with the request ID and replaced with
// a generic message so driver text never reaches the client.
func toGraphQLError(ctx context.Context, logger *slog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}

	code := ledger.Code(err)
	if ledger.IsClientError(err) {
		return &Error{Message: err.Error(), Code: code}
	}

	logger.ErrorContext(ctx, "Resolver failed",
		"op", op,
		"request_id", middleware.GetReqID(ctx),
		"error", err)
	return &Error{Message: storageFailureMessage, Code: ledger.CodeStorageFailure}
}
