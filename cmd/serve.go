// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/respcore/respcore/confengine"
	"github.com/respcore/respcore/internal/sigs"
	"github.com/respcore/respcore/logger"
	"github.com/respcore/respcore/pool"
	"github.com/respcore/respcore/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Maintain a connection pool against the configured Redis addresses and expose its debug/metrics server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		var loggerOpt logger.Options
		if err := cfg.UnpackChild("logger", &loggerOpt); err == nil {
			logger.SetOptions(loggerOpt)
		}

		var poolCfg pool.Config
		if err := cfg.UnpackChild("pool", &poolCfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load pool config: %v\n", err)
			os.Exit(1)
		}

		p, err := pool.New(poolCfg, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start pool: %v\n", err)
			os.Exit(1)
		}

		srv, err := server.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create debug server: %v\n", err)
			os.Exit(1)
		}
		if srv != nil {
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to start debug server: %v\n", err)
				os.Exit(1)
			}
			logger.Infof("debug/metrics server listening")
		}

		logger.Infof("pool %q serving %d address(es), min=%d max=%d",
			poolCfg.Name, len(poolCfg.InitialAddresses), poolCfg.Min, poolCfg.Max)

		<-sigs.Terminate()

		logger.Infof("shutting down")
		if srv != nil {
			_ = srv.Stop()
		}
		if err := p.Close(); err != nil {
			logger.Warnf("pool close: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
