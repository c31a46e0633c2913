package handler

import (
	"net/http"
	"strconv"

	"nexochat/backend/internal/apperror"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperror.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperror.CodePermissionDenied:
		return http.StatusForbidden
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeConflict:
		return http.StatusConflict
	case apperror.CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := apperror.CodeOf(err)
	message := "internal error"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if code == apperror.CodeInternal {
		jww.ERROR.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(StatusFor(code), ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func badRequest(err error) error {
	return apperror.Wrap(apperror.CodeInvalidArgument, "invalid request", err)
}

func uintParam(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, apperror.InvalidArg(name + " must be a positive integer")
	}
	return uint(v), nil
}
