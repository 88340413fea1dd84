package starter

import (
	"context"
	"fmt"

	"github.com/JakeFAU/elm-starter/internal/devserver"
	"github.com/JakeFAU/elm-starter/internal/elmworker"
)

// ServerBuild serves the finished build. The conf's serverBuild command is
// used when there is one, otherwise the built-in server takes over.
func (s *Starter) ServerBuild(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvProd)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if !conf.ServerBuild.Empty() {
		return s.runCommand(ctx, "serverBuild", conf.ServerBuild)
	}
	srv, err := devserver.New(devserver.Config{
		Root:     conf.Dir.Build,
		Port:     s.cfg.Server.Port,
		Registry: s.registry,
		Logger:   s.logger,
	})
	if err != nil {
		return fmt.Errorf("serverBuild: %w", err)
	}
	return srv.Serve(ctx)
}
