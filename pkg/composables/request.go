package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantgate/pkg/constants"
)

// Params is the per-request item bag. A fresh value is created for every
// request by middleware.RequestParams and is never shared across requests.
type Params struct {
	IP        string
	UserAgent string
	RequestID string

	// Copied from the tenant context by the access gate for later stages
	// (rate limiting, auditing) so they do not resolve the tenant again.
	TenantID  string
	StoreName string
	PlanID    string
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

// UseLogger returns the request logger, or a standard entry outside of HTTP requests.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseIP returns the IP address from the context.
// If the IP address is not found, the second return value will be false.
func UseIP(ctx context.Context) (string, bool) {
	params, ok := UseParams(ctx)
	if !ok || params.IP == "" {
		return "", false
	}
	return params.IP, true
}
