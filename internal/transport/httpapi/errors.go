package httpapi

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// ErrorResponse — тело ответа при ошибке.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const internalMessage = "internal server error"

// ToStatus переводит доменную ошибку в gRPC-статус.
// Сообщение внутренних ошибок наружу не отдаётся.
func ToStatus(err error) *status.Status {
	switch {
	case err == nil:
		return status.New(codes.OK, "")
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.New(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrFailedPrecondition):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.New(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.New(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrUpstream):
		return status.New(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, "request canceled")
	default:
		return status.New(codes.Internal, internalMessage)
	}
}

// HTTPStatus возвращает HTTP-код и машинный код ошибки для gRPC-кода.
func HTTPStatus(code codes.Code) (int, string) {
	switch code {
	case codes.OK:
		return http.StatusOK, "ok"
	case codes.InvalidArgument:
		return http.StatusBadRequest, "invalid_argument"
	case codes.NotFound:
		return http.StatusNotFound, "not_found"
	case codes.Aborted, codes.AlreadyExists:
		return http.StatusConflict, "conflict"
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed, "failed_precondition"
	case codes.Unauthenticated:
		return http.StatusUnauthorized, "unauthenticated"
	case codes.PermissionDenied:
		return http.StatusForbidden, "permission_denied"
	case codes.Unavailable:
		return http.StatusBadGateway, "upstream_error"
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, "timeout"
	case codes.Canceled:
		// nginx-совместимый код для закрытого клиентом соединения
		return 499, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
