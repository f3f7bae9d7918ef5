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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/respcore/respcore/confengine"
	"github.com/respcore/respcore/pool"
	"github.com/respcore/respcore/resp"
)

var pingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Lease one connection from the configured pool and round-trip a PING",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
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
		defer func() { _ = p.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()

		conn, err := p.Lease(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lease failed: %v\n", err)
			os.Exit(1)
		}
		defer p.Return(conn)

		start := time.Now()
		v, err := conn.Send(ctx, resp.NewCommand("PING"))
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "PING failed: %v\n", err)
			os.Exit(1)
		}

		if se := resp.AsServerError(v); se != nil {
			fmt.Fprintf(os.Stderr, "PING replied with server error: %v\n", se)
			os.Exit(1)
		}

		fmt.Printf("PONG in %s (%s)\n", elapsed, describeReply(v))
	},
}

func describeReply(v resp.Value) string {
	switch v.Kind {
	case resp.KindSimpleString:
		return string(v.Str)
	case resp.KindBulkString:
		return string(v.Bulk)
	default:
		return v.Kind.String()
	}
}

func init() {
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 3*time.Second, "Deadline for the lease and the PING round-trip")
	rootCmd.AddCommand(pingCmd)
}
