// Package container registers the dependencies HTTP handlers resolve per request
package container

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
)

// New creates the container id holding the resolver service and the logger.
// Container ids are process-wide, so id must be unique.
func New(id string, svc *resolver.Service, logger ectologger.Logger) (ectocontainer.DIContainer, error) {
	c, err := ectoinject.NewDIContainer(ectocontainer.DIContainerConfig{
		ID:                       id,
		AllowCaptiveDependencies: true,
		AllowMissingDependencies: false,
		LoggerConfig: &ectocontainer.DIContainerLoggerConfig{
			Prefix:   "container",
			LogLevel: loglevel.WARN,
			Enabled:  true,
			LogFunc: func(ctx context.Context, level, msg string) {
				logger.WithContext(ctx).WithField("container", id).Debugf("%s: %s", level, msg)
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", id, err)
	}

	if err := ectoinject.RegisterInstance[*resolver.Service](c, svc); err != nil {
		return nil, fmt.Errorf("failed to register resolver service: %w", err)
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](c, logger); err != nil {
		return nil, fmt.Errorf("failed to register logger: %w", err)
	}
	return c, nil
}
