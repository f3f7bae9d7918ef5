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

package conn

import (
	"time"

	"github.com/respcore/respcore/common"
)

// Config 描述建立与维护一条连接所需的全部参数 可通过 confengine 从 YAML 反序列化
type Config struct {
	Address         string        `config:"address"`
	Username        string        `config:"username"`
	Password        string        `config:"password"`
	InitialDatabase int           `config:"initialDatabase"`
	ClientName      string        `config:"clientName"`
	DialTimeout     time.Duration `config:"dialTimeout"`
	ReadTimeout     time.Duration `config:"readTimeout"`
	WriteTimeout    time.Duration `config:"writeTimeout"`

	// ReadBufferChunk 每次从套接字读取的字节块大小 0 使用默认值
	ReadBufferChunk int `config:"readBufferChunk"`

	// PushBacklog Push 积压队列容量 0 时 pushBacklog() 返回默认值; Connection 不读取该字段:
	// PushSink().Subscribe 使用调用方传入的容量
	PushBacklog int `config:"pushBacklog"`

	// WriteBufferCeiling 流水线 outbound 缓冲累积的所有已提交未写出字节之和的上限 0 使用默认值
	// 一旦待写字节总量超过它 Send 立即以 pipeline.ErrWriteBufferFull 失败 不会有任何字节入队
	WriteBufferCeiling int `config:"writeBufferCeiling"`
}

const (
	defaultReadBufferChunk    = common.ReadWriteBlockSize
	defaultPushBacklog        = 64
	defaultWriteBufferCeiling = 1 << 20
)

// Validate 校验配置 对应 ErrConfigurationInvalid
func (c Config) Validate() error {
	if c.Address == "" {
		return ErrConfigurationInvalid
	}
	if c.InitialDatabase < 0 {
		return ErrConfigurationInvalid
	}
	return nil
}

func (c Config) readBufferChunk() int {
	if c.ReadBufferChunk > 0 {
		return c.ReadBufferChunk
	}
	return defaultReadBufferChunk
}

func (c Config) pushBacklog() int {
	if c.PushBacklog > 0 {
		return c.PushBacklog
	}
	return defaultPushBacklog
}

func (c Config) writeBufferCeiling() int {
	if c.WriteBufferCeiling > 0 {
		return c.WriteBufferCeiling
	}
	return defaultWriteBufferCeiling
}
