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

// Package pool 实现跨多条连接的租借池: Lease/Return 生命周期 FIFO 公平的等待队列
// 以及按退避策略驱动的最小存活数维护
package pool

import (
	"strings"
	"time"

	"github.com/respcore/respcore/conn"
)

// Behavior 描述连接池在达到 Max 之后的行为
type Behavior string

const (
	// BehaviorStrict 永不超过 Max 多余的租借请求排队等待
	BehaviorStrict Behavior = "strict"
	// BehaviorElastic 允许临时超过 Max 以满足等待者 归还时若高于 Max 立即关闭多余连接
	BehaviorElastic Behavior = "elastic"
)

// Config 描述一个 ConnectionPool 的全部参数 可通过 confengine 从 YAML 反序列化
type Config struct {
	// Name 标识该池 用作 metrics 标签 留空则退化为 "default"
	Name             string   `config:"name"`
	InitialAddresses []string `config:"initialAddresses"`
	Min              int      `config:"min"`
	Max              int      `config:"max"`
	Behavior         Behavior `config:"behavior"`

	RetryInitialDelay time.Duration `config:"retryInitialDelay"`
	RetryFactor       float64       `config:"retryFactor"`
	RetryCeiling      time.Duration `config:"retryCeiling"`
	RetryTimeout      time.Duration `config:"retryTimeout"`

	DefaultLeaseDeadline time.Duration `config:"defaultLeaseDeadline"`

	// ConnTemplate 是拨号每条新连接时使用的配置模板 其 Address 字段会被忽略
	// 并替换为 InitialAddresses 中轮询选出的地址
	ConnTemplate conn.Config `config:"conn"`
}

const (
	defaultRetryInitialDelay = 50 * time.Millisecond
	defaultRetryFactor       = 2.0
	defaultRetryCeiling      = 10 * time.Second
	defaultRetryTimeout      = 5 * time.Second
)

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = defaultRetryInitialDelay
	}
	if c.RetryFactor <= 1 {
		c.RetryFactor = defaultRetryFactor
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = defaultRetryCeiling
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = defaultRetryTimeout
	}
	if c.Behavior == "" {
		c.Behavior = BehaviorStrict
	}
}

func (c Config) elastic() bool {
	return Behavior(strings.ToLower(string(c.Behavior))) == BehaviorElastic
}

// Validate 校验配置 对应 ErrConfigurationInvalid
func (c Config) Validate() error {
	if len(c.InitialAddresses) == 0 {
		return ErrConfigurationInvalid
	}
	if c.Min < 0 || c.Max <= 0 || c.Min > c.Max {
		return ErrConfigurationInvalid
	}
	switch Behavior(strings.ToLower(string(c.Behavior))) {
	case BehaviorStrict, BehaviorElastic, "":
	default:
		return ErrConfigurationInvalid
	}
	return nil
}
