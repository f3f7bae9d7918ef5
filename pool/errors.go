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

package pool

import "github.com/pkg/errors"

// ErrPoolClosed 表示连接池已经关闭 所有当前与后续的等待者都会收到它
var ErrPoolClosed = errors.New("pool: closed")

// ErrWaiterTimeout 表示一次租借请求在其 deadline 之前未能获得连接
var ErrWaiterTimeout = errors.New("pool: waiter timeout")

// ErrConfigurationInvalid 表示 Config 未通过校验
var ErrConfigurationInvalid = errors.New("pool: invalid configuration")
