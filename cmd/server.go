/*
Copyright 2024 Svelto Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/balazzarini/svelto-app/api"
	"github.com/balazzarini/svelto-app/config"
	"github.com/balazzarini/svelto-app/internal/notification"
)

func initializeRouter(s *sveltoInstance) *gin.Engine {
	return api.NewAPI(s.svelto).Router()
}

// startSyncScheduler runs the pull-then-match cycle on the configured
// interval. Every pass syncs all active integrations and then feeds the
// fresh pending rows through the matcher.
func startSyncScheduler(ctx context.Context, s *sveltoInstance) {
	interval := time.Duration(s.cnf.Sync.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runSyncPass(ctx, s)
			}
		}
	}()
}

func runSyncPass(ctx context.Context, s *sveltoInstance) {
	tenant := s.cnf.DefaultTenant

	results, err := s.svelto.SyncAllIntegrations(ctx, tenant)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	for _, r := range results {
		if r.Error != "" {
			log.Printf("sync error on integration %s: %s", r.IntegrationID, r.Error)
		}
	}

	matchResult, err := s.svelto.RunAutoMatch(ctx, tenant, "", nil)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	log.Printf("scheduled match pass: %d processed, %d matched, %d disputes",
		matchResult.Processed, matchResult.Matches, matchResult.Disputes)
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands returns the Cobra command responsible for starting the
// conciliation server and its background sync scheduler.
func serverCommands(s *sveltoInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start svelto server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			router := initializeRouter(s)

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			startSyncScheduler(ctx, s)

			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}

// syncCommands runs one sync-and-match pass and exits, for cron-style
// deployments that do not keep the server running.
func syncCommands(s *sveltoInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "run one sync and match pass",
		Run: func(cmd *cobra.Command, args []string) {
			runSyncPass(context.Background(), s)
		},
	}

	return cmd
}
