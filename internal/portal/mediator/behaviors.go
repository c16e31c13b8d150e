package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/metrics"
	"github.com/initiumportal/stance/pkg/slogx"
)

// NewValidator returns a validator that also knows the "resource" tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("resource", func(fl validator.FieldLevel) bool {
		return slices.Contains(domain.KnownResources, fl.Field().String())
	})
	return v
}

// Validation rejects commands that fail their validate tags with
// ValidationFailed before any handler runs.
func Validation(v *validator.Validate) Behavior {
	return func(ctx context.Context, req Request, next func(ctx context.Context) error) error {
		if err := v.Struct(req.Command); err != nil {
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				msgs := make([]string, 0, len(ve))
				for _, fe := range ve {
					msgs = append(msgs, fieldError(fe))
				}
				return domain.ErrValidationFailed.WithMessage(strings.Join(msgs, "; "))
			}
			var invalid *validator.InvalidValidationError
			if errors.As(err, &invalid) {
				// Non-struct commands carry nothing to validate.
				return next(ctx)
			}
			return err
		}
		return next(ctx)
	}
}

func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "numeric":
		return field + " must be numeric"
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, strings.ToLower(fe.Param()))
	case "resource":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(domain.KnownResources, ", "))
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// Logging logs each command with its outcome and duration. Expected business
// failures log at info, anything else at error.
func Logging() Behavior {
	return func(ctx context.Context, req Request, next func(ctx context.Context) error) error {
		ctx = slogx.With(ctx, slog.String("command", req.Name))
		logger := slogx.FromContext(ctx)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		switch code, ok := domain.CodeOf(err); {
		case err == nil:
			logger.Debug("command handled", slog.Duration("duration", elapsed))
		case ok:
			logger.Info("command rejected",
				slog.String("code", string(code)),
				slog.Duration("duration", elapsed),
			)
		default:
			logger.Error("command failed",
				slog.Any("error", err),
				slog.Duration("duration", elapsed),
			)
		}
		return err
	}
}

// Metrics records the command count and latency by outcome.
func Metrics() Behavior {
	return func(ctx context.Context, req Request, next func(ctx context.Context) error) error {
		start := time.Now()
		err := next(ctx)

		metrics.CommandDuration.WithLabelValues(req.Name).Observe(time.Since(start).Seconds())
		metrics.CommandsTotal.WithLabelValues(req.Name, Outcome(err)).Inc()
		return err
	}
}

// Outcome is the metric label for err: "ok", its error code, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code, ok := domain.CodeOf(err); ok {
		return string(code)
	}
	return "error"
}

// Default is the pipeline every portal handler runs through.
func Default() *Pipeline {
	return NewPipeline(Metrics(), Logging(), Validation(NewValidator()))
}
