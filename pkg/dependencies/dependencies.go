// Package dependencies owns the injection container the route handlers
// resolve their services from.
package dependencies

import (
	"context"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
)

// Registration adds one dependency to a container.
type Registration func(c ectocontainer.DIContainer) error

// Instance registers value as the singleton for T.
func Instance[T any](value T) Registration {
	return func(c ectocontainer.DIContainer) error {
		return ectoinject.RegisterInstance[T](c, value)
	}
}

// NewContainer creates and registers a container named after prefix. The id
// carries a random suffix so several servers can live in one process.
func NewContainer(prefix string, logger ectologger.Logger, registrations ...Registration) (ectocontainer.DIContainer, error) {
	c, err := ectoinject.NewDIContainer(ectocontainer.DIContainerConfig{
		ID:                       prefix + "-" + uuid.NewString(),
		AllowCaptiveDependencies: true,
		LoggerConfig: &ectocontainer.DIContainerLoggerConfig{
			Prefix:   "ectoinject",
			LogLevel: loglevel.WARN,
			Enabled:  true,
			LogFunc: func(ctx context.Context, level, msg string) {
				if level == loglevel.WARN {
					logger.WithContext(ctx).Warn(msg)
					return
				}
				logger.WithContext(ctx).Debug(msg)
			},
		},
	})
	if err != nil {
		return nil, err
	}

	for _, register := range registrations {
		if err := register(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Activate points ctx at the container with the given id.
func Activate(ctx context.Context, id string) (context.Context, error) {
	return ectoinject.SetActiveContainer(ctx, id)
}
