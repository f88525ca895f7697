package application

import (
	"reflect"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantgate/pkg/eventbus"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Name() string
	Register(app Application) error
}

type Application interface {
	DB() *pgxpool.Pool
	Logger() *logrus.Logger
	EventPublisher() eventbus.EventBus
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewEventPublisher(opts.Logger)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &application{
		pool:     opts.Pool,
		eventBus: bus,
		logger:   logger,
		services: make(map[reflect.Type]interface{}),
	}
}

type application struct {
	pool        *pgxpool.Pool
	eventBus    eventbus.EventBus
	logger      *logrus.Logger
	mu          sync.RWMutex
	controllers []Controller
	middleware  []mux.MiddlewareFunc
	services    map[reflect.Type]interface{}
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventBus
}

func (app *application) Controllers() []Controller {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]Controller(nil), app.controllers...)
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]mux.MiddlewareFunc(nil), app.middleware...)
}

func (app *application) RegisterControllers(controllers ...Controller) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.controllers = append(app.controllers, controllers...)
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices indexes services by their dereferenced type.
func (app *application) RegisterServices(services ...interface{}) {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, service := range services {
		app.services[reflect.TypeOf(service).Elem()] = service
	}
}

// Service looks a service up by a zero value of its type, e.g. app.Service(services.AuthService{}).
func (app *application) Service(service interface{}) interface{} {
	app.mu.RLock()
	defer app.mu.RUnlock()
	svc, ok := app.services[reflect.TypeOf(service)]
	if !ok {
		panic("service not found: " + reflect.TypeOf(service).String())
	}
	return svc
}
