package services

import (
	"net/http"

	"github.com/iota-uz/tenantgate/pkg/serrors"
)

var (
	ErrTenantNotFound     = serrors.NewError("TENANT_NOT_FOUND", "tenant not found", "")
	ErrTenantProvisioning = serrors.NewError("TENANT_PROVISIONING", "tenant is being provisioned, retry later", "")
	ErrTenantSuspended    = serrors.NewError("TENANT_SUSPENDED", "tenant subscription is suspended", "")
	ErrTenantTerminated   = serrors.NewError("TENANT_TERMINATED", "tenant has been terminated", "")
	ErrTenantRequired     = serrors.NewError("TENANT_REQUIRED", "tenant could not be determined for this request", "")
	ErrInvalidCredentials = serrors.NewError("INVALID_CREDENTIALS", "invalid email or password", "")
	ErrInvalidToken       = serrors.NewError("INVALID_TOKEN", "token is invalid or revoked", "")
	ErrTokenExpired       = serrors.NewError("TOKEN_EXPIRED", "token has expired", "")
	ErrUserInactive       = serrors.NewError("USER_INACTIVE", "user is inactive", "")
	ErrUnauthenticated    = serrors.NewError("UNAUTHENTICATED", "authentication required", "")
	ErrStoreAccessFault   = serrors.NewError("STORE_ACCESS_FAULT", "tenant store is unavailable", "")
	ErrInvalidTransition  = serrors.NewError("INVALID_STATUS_TRANSITION", "tenant status transition is not allowed", "")
	ErrRoutingKeyTaken    = serrors.NewError("ROUTING_KEY_TAKEN", "routing key is already in use", "")
	ErrStoreNameTaken     = serrors.NewError("STORE_NAME_TAKEN", "store name is already in use", "")
	ErrInvalidStoreName   = serrors.NewError("INVALID_STORE_NAME", "store name is not a valid schema identifier", "")
	ErrEmailTaken         = serrors.NewError("EMAIL_TAKEN", "email is already registered", "")
	ErrRateLimited        = serrors.NewError("RATE_LIMITED", "too many requests", "")
)

var statusByCode = map[string]int{
	ErrTenantNotFound.Code:     http.StatusNotFound,
	ErrTenantProvisioning.Code: http.StatusServiceUnavailable,
	ErrTenantSuspended.Code:    http.StatusPaymentRequired,
	ErrTenantTerminated.Code:   http.StatusForbidden,
	ErrTenantRequired.Code:     http.StatusBadRequest,
	ErrInvalidCredentials.Code: http.StatusUnauthorized,
	ErrInvalidToken.Code:       http.StatusUnauthorized,
	ErrTokenExpired.Code:       http.StatusUnauthorized,
	ErrUserInactive.Code:       http.StatusUnauthorized,
	ErrUnauthenticated.Code:    http.StatusUnauthorized,
	ErrStoreAccessFault.Code:   http.StatusServiceUnavailable,
	ErrInvalidTransition.Code:  http.StatusConflict,
	ErrRoutingKeyTaken.Code:    http.StatusConflict,
	ErrStoreNameTaken.Code:     http.StatusConflict,
	ErrInvalidStoreName.Code:   http.StatusBadRequest,
	ErrEmailTaken.Code:         http.StatusConflict,
	ErrRateLimited.Code:        http.StatusTooManyRequests,
}

// HTTPStatus resolves a service error code for httpapi.WriteServiceError.
func HTTPStatus(code string) (int, bool) {
	status, ok := statusByCode[code]
	return status, ok
}
