package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oukeidos/ebt/internal/apperrors"
)

// grpcHTTP maps the gRPC codes the API returns onto the HTTP status it
// documents for the same condition.
var grpcHTTP = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.NotFound:           http.StatusNotFound,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.Aborted:            http.StatusServiceUnavailable,
}

// classifyGeminiError turns a client error into an apperrors.Error. The
// upstream message is kept only as the wrapped cause.
func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("gemini generate content failed: %w", err)

	// Refused prompts and candidates stopped for safety or recitation arrive
	// as a BlockedError instead of a response.
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return apperrors.New(apperrors.KindSafety, "Gemini refused the content.", wrapped)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.New(apperrors.KindTransient, "Gemini request timed out. Please retry.", wrapped)
	}

	if code := statusCode(err); code != 0 {
		return fromStatus(code, wrapped)
	}
	// DNS, socket and other transport failures.
	return apperrors.New(apperrors.KindTransient, "Gemini request failed due to a temporary network/runtime error.", wrapped)
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	if st, ok := status.FromError(err); ok {
		return grpcHTTP[st.Code()]
	}
	return 0
}

func fromStatus(code int, wrapped error) error {
	switch {
	case code == http.StatusNotFound:
		return apperrors.New(apperrors.KindBadRequest, "Gemini model not found or no access (404).", wrapped)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.New(apperrors.KindAuth, fmt.Sprintf("Gemini authentication/authorization failed (%d).", code), wrapped)
	case code == http.StatusTooManyRequests:
		return apperrors.New(apperrors.KindRateLimit, "Gemini rate limit exceeded (429). Please try again later.", wrapped)
	case code >= 500:
		return apperrors.New(apperrors.KindTransient, fmt.Sprintf("Gemini service temporary error (%d). Please retry.", code), wrapped)
	default:
		return apperrors.New(apperrors.KindBadRequest, fmt.Sprintf("Gemini request rejected (%d).", code), wrapped)
	}
}
