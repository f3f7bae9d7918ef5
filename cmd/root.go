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

// Package cmd 提供 respcore 的命令行入口: 加载配置 启动连接池与调试/指标服务
// 并在收到终止信号时优雅退出
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/respcore/respcore/common"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   common.App,
	Short: "respcore is a RESP2/RESP3 client core: codec, command pipeline and connection pool",
}

// Execute 运行命令行入口 由 main 包调用
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "respcore.yaml", "Configuration file path")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := common.GetBuildInfo()
		fmt.Printf("%s %s (%s) built at %s\n", common.App, info.Version, info.GitHash, info.Time)
	},
}
