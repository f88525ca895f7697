package modules

import (
	"github.com/iota-uz/tenantgate/pkg/application"
)

// Load registers modules in order; the first failure stops loading.
func Load(app application.Application, modules ...application.Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
