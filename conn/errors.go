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

import "github.com/pkg/errors"

// ErrNotReady 表示在 Ready 之外的状态下调用了 Send; Send 把它作为 pipeline.ConnectionClosedError 的 Cause 返回
var ErrNotReady = errors.New("conn: connection is not ready")

// ErrConfigurationInvalid 表示 Config 未通过校验
var ErrConfigurationInvalid = errors.New("conn: invalid configuration")
