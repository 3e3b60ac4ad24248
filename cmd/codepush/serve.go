package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/microsoft/code-push-server-sub001/internal/codepush/config"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/lib"
	"github.com/microsoft/code-push-server-sub001/internal/codepush/server"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the update server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := config.Load()

	store, err := lib.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return err
	}

	var backend lib.Backend
	if cfg.RedisAddr != "" {
		backend = lib.NewRedisBackend(cfg.RedisAddr)
		logrus.WithField("addr", cfg.RedisAddr).Info("using redis response cache")
	} else {
		backend = lib.NewMemoryBackend()
		logrus.Info("using in-memory response cache")
	}
	cache := lib.NewResponseCache(backend, cfg.CacheTTL, cfg.CacheTimeout)
	differ := lib.NewPackageDiffer(store, cfg.MaxPackagesToDiff)

	srv := server.New(store, cache, differ)
	logrus.WithField("port", cfg.Port).Info("update server listening")
	return srv.App().Listen(":" + cfg.Port)
}
