package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/jdeola/skillbase/pkg/logger"
	"github.com/jdeola/skillbase/pkg/overlay"
	"github.com/jdeola/skillbase/pkg/pattern"
	"github.com/jdeola/skillbase/pkg/refinement"
	"github.com/jdeola/skillbase/pkg/syncer"
)

// aggregatorOptions maps the configured generalization threshold onto the
// aggregator.
func aggregatorOptions() []pattern.Option {
	var opts []pattern.Option
	if threshold := viper.GetInt("pattern.generalization_threshold"); threshold > 0 {
		opts = append(opts, pattern.WithThreshold(threshold))
	}
	return opts
}

// newLoader builds the layer loader, honoring an explicit project root.
func newLoader(projectRoot string) (*overlay.Loader, error) {
	var opts []overlay.LoaderOption
	if projectRoot != "" {
		opts = append(opts, overlay.WithProjectRoot(projectRoot))
	}
	if dir := viper.GetString("user_dir"); dir != "" {
		opts = append(opts, overlay.WithUserDir(dir))
	}
	return overlay.NewLoader(opts...)
}

// newStore opens the refinement store configured via viper.
func newStore(ctx context.Context) (refinement.Store, error) {
	cfg, err := refinement.DefaultConfig()
	if err != nil {
		return nil, err
	}
	if backend := viper.GetString("store.backend"); backend != "" {
		cfg.Backend = backend
	}
	if base := viper.GetString("store.path"); base != "" {
		cfg.BasePath = base
	}
	return refinement.NewStore(ctx, cfg)
}

// maybeSync replicates refinement state to the configured sync directory.
// Failures are logged and swallowed; sync never fails the local operation.
func maybeSync(ctx context.Context) {
	remote := viper.GetString("sync.dir")
	if remote == "" || !viper.GetBool("sync.enabled") {
		return
	}
	cfg, err := refinement.DefaultConfig()
	if err != nil {
		return
	}
	local := cfg.BasePath
	if base := viper.GetString("store.path"); base != "" {
		local = base
	}
	s := syncer.New(filepath.Join(local, "refinements"), remote)
	if err := s.Sync(ctx); err != nil {
		logger.G(ctx).WithError(err).Debug("state sync incomplete")
	}
}
