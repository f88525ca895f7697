package services

import "context"

// StoreScope opens a scoped execution context for one tenant store. fn sees
// a context whose repositories only reach storeName; the scope is released
// when fn returns.
type StoreScope interface {
	Run(ctx context.Context, storeName string, fn func(ctx context.Context) error) error
}
