package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storefront/internal/domain"
)

const internalErrorMessage = "Internal server error"

// StatusFromError converts a domain error into a gRPC status. Unexpected errors never
// expose their message.
func StatusFromError(err error) *status.Status {
	message := err.Error()
	var de *domain.Error
	var short *domain.InsufficientStockError
	switch {
	case errors.As(err, &de):
		message = de.Message
	case errors.As(err, &short):
		message = short.Error()
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return status.New(codes.NotFound, message)
	case domain.KindInvalidState:
		return status.New(codes.FailedPrecondition, message)
	case domain.KindConflict:
		return status.New(codes.Aborted, message)
	default:
		return status.New(codes.Internal, internalErrorMessage)
	}
}

func httpStatusFromCode(st *status.Status) (int, string) {
	switch st.Code() {
	case codes.OK:
		return http.StatusOK, "Success (unexpected error state)"
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest, st.Message()
	case codes.NotFound:
		return http.StatusNotFound, st.Message()
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict, st.Message()
	case codes.PermissionDenied:
		return http.StatusForbidden, st.Message()
	case codes.Unauthenticated:
		return http.StatusUnauthorized, st.Message()
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests, st.Message()
	case codes.Unavailable:
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}

// respondError writes the HTTP form of err. Stock shortages are listed in the body.
func respondError(c *gin.Context, logger logrus.FieldLogger, err error) {
	st := StatusFromError(err)
	httpStatus, message := httpStatusFromCode(st)

	body := ErrorBody{Message: message}
	var short *domain.InsufficientStockError
	if errors.As(err, &short) {
		body.Shortages = short.Shortages
	}

	if httpStatus >= http.StatusInternalServerError {
		logger.Errorf("Handler Error: %v", err)
		_ = c.Error(err)
	} else {
		logger.Warnf("Handler Error: Mapped %s error (Code: %s, Message: '%s') to HTTP Status %d",
			domain.KindOf(err), st.Code(), st.Message(), httpStatus)
	}
	c.AbortWithStatusJSON(httpStatus, body)
}
