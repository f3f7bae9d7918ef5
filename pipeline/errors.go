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

package pipeline

import "github.com/pkg/errors"

// ErrWriteBufferFull 表示连接的出站写缓冲已达到容量上限 Send 会立即以该错误完成 不会入队
var ErrWriteBufferFull = errors.New("pipeline: write buffer full")

// ConnectionClosedError 携带连接关闭的根因 包装局部关闭 远端 EOF I/O 失败或协议错误
type ConnectionClosedError struct {
	Cause error
}

func (e *ConnectionClosedError) Error() string {
	if e.Cause == nil {
		return "pipeline: connection closed"
	}
	return "pipeline: connection closed: " + e.Cause.Error()
}

// Unwrap 使 errors.Is/errors.As 能够穿透到 Cause
func (e *ConnectionClosedError) Unwrap() error {
	return e.Cause
}

// NewConnectionClosedError 构造一个 ConnectionClosedError
func NewConnectionClosedError(cause error) *ConnectionClosedError {
	return &ConnectionClosedError{Cause: cause}
}

// IsConnectionClosed 判断 err 是否 (包装地) 是一次连接关闭
func IsConnectionClosed(err error) bool {
	var cc *ConnectionClosedError
	return errors.As(err, &cc)
}
