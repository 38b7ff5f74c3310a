package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"replistore/internal/debugapi"
	"replistore/internal/node"
	"replistore/internal/store/redisstore"
	"replistore/internal/transport"
)

func newServeCmd() *cobra.Command {
	var (
		instance  string
		addr      string
		redisAddr string
		redisDB   int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run one node and expose its debug HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			if instance == "" {
				return fmt.Errorf("--instance is required")
			}

			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()
			log = log.Named("serve")

			opts := []node.Option{node.WithLogger(log)}
			if redisAddr != "" {
				ctx := context.Background()
				backend, err := redisstore.New(ctx, redisAddr, redisDB, instance, log)
				if err != nil {
					return fmt.Errorf("connect redis: %w", err)
				}
				opts = append(opts, node.WithStoreBackend(backend))
			}

			// A served node's own transport only knows itself: serve is a
			// single-node debug surface, not a network peer. Multi-node
			// replication is demonstrated by the simulate subcommand.
			n, err := node.New(instance, transport.NewInMemory(), opts...)
			if err != nil {
				return fmt.Errorf("construct node: %w", err)
			}

			router := debugapi.NewRouter(n, log)
			httpServer := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			log.Info("serving debug API", zap.String("instance", instance), zap.String("addr", addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&instance, "instance", "", "this node's instance ID (required)")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "debug HTTP listen address")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "optional Redis addr for a persisted Store backend")
	cmd.Flags().IntVar(&redisDB, "redis-db", 0, "Redis logical DB index")
	return cmd
}
