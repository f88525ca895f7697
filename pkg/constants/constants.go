package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	LoggerKey        ContextKey = "logger"
	RequestStart     ContextKey = "requestStart"
	ParamsKey        ContextKey = "params"
	TxKey            ContextKey = "tx"
	TenantKey        ContextKey = "tenant"
	IdentityKey      ContextKey = "identity"
	StoreNameKey     ContextKey = "storeName"
	AppKey           ContextKey = "app"
	TenantHeader                = "X-Tenant-Id"
	TenantQueryParam            = "tenant"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
