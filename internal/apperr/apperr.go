// Package apperr defines the structured error surface of the service. Every
// error leaving a handler is an AppError carrying an errbuilder code, a
// domain category, and the HTTP status to answer with.
package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"

	"github.com/openmave/mavemeter/internal/matrix"
)

// Category names the domain condition behind an error.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryEmptyInput   Category = "empty_input"
	CategoryParseFailure Category = "parse_failure"
	CategoryNotFound     Category = "not_found"
	CategoryRateLimit    Category = "rate_limit"
	CategoryStorage      Category = "storage"
	CategoryInternal     Category = "internal"
)

// AppError wraps an errbuilder error with the category and HTTP status the
// API layer needs.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   Category  `json:"category"`
	HTTPStatus int       `json:"http_status"`
	Timestamp  time.Time `json:"timestamp"`
	StackTrace string    `json:"stack_trace,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.ErrBuilder.Msg)
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// New creates an AppError from a prepared builder.
func New(builder *errbuilder.ErrBuilder, category Category, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewValidationError rejects a malformed request.
func NewValidationError(message string, fields map[string]string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(fields) > 0 {
		errMap := errbuilder.ErrorMap{}
		for field, msg := range fields {
			errMap.Set(field, errors.New(msg))
		}
		builder = builder.WithDetails(errbuilder.NewErrDetails(errMap))
	}

	return New(builder, CategoryValidation, http.StatusBadRequest)
}

// NewEmptyInputError rejects a submission with no usable experiments or no
// resolvable variants.
func NewEmptyInputError(cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("no usable experiment data in submission")
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return New(builder, CategoryEmptyInput, http.StatusBadRequest)
}

// NewParseError reports an unresolvable variant notation. Individual bad
// records inside a usable submission are tolerated and tallied; this error
// is for contexts where a single notation must resolve, such as a lookup.
func NewParseError(notation string, cause error) *AppError {
	errMap := errbuilder.ErrorMap{}
	errMap.Set("notation", errors.New(notation))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("unparseable variant notation").
		WithDetails(errbuilder.NewErrDetails(errMap))
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return New(builder, CategoryParseFailure, http.StatusBadRequest)
}

// NewNotFoundError reports a missing run or resource.
func NewNotFoundError(resource, id string) *AppError {
	errMap := errbuilder.ErrorMap{}
	errMap.Set(resource, errors.New(id))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s not found", resource)).
		WithDetails(errbuilder.NewErrDetails(errMap))

	return New(builder, CategoryNotFound, http.StatusNotFound)
}

// NewRateLimitError tells the client when to retry.
func NewRateLimitError(retryAfter string) *AppError {
	errMap := errbuilder.ErrorMap{}
	errMap.Set("retry_after", errors.New(retryAfter))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("rate limit exceeded").
		WithDetails(errbuilder.NewErrDetails(errMap))

	return New(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewStorageError wraps a persistence failure.
func NewStorageError(op string, cause error) *AppError {
	errMap := errbuilder.ErrorMap{}
	errMap.Set("operation", errors.New(op))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("storage operation failed").
		WithDetails(errbuilder.NewErrDetails(errMap))
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return New(builder, CategoryStorage, http.StatusInternalServerError)
}

// NewInternalError wraps anything unexpected.
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := New(builder, CategoryInternal, http.StatusInternalServerError)
	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ToAppError normalizes any error to an AppError. Known pipeline sentinels
// map to their category; everything else is internal.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return New(ebErr, CategoryInternal, http.StatusInternalServerError)
	}
	if errors.Is(err, matrix.ErrEmptyInput) {
		return NewEmptyInputError(err)
	}
	return NewInternalError("an unexpected error occurred", err)
}

// ErrorHandler converts errors attached to the gin context into structured
// JSON responses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := ToAppError(c.Errors.Last().Err)
		logError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns panics into 500 responses instead of dropped
// connections.
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		logError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

func logError(c *gin.Context, err *AppError) {
	entry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	switch err.Category {
	case CategoryValidation, CategoryEmptyInput, CategoryParseFailure,
		CategoryNotFound, CategoryRateLimit:
		entry.Warn(err.ErrBuilder.Msg)
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			entry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			entry.Error(err.ErrBuilder.Msg)
		}
	}
}

// Wrap adds context to an error without changing its identity.
func Wrap(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}

// SafeClose closes a resource and logs instead of failing.
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
