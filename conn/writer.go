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
	"net"
	"time"

	"github.com/pkg/errors"
)

// deadlineWriter 是 CommandPipeline 的写 sink: 每次 Write 前按配置的 WriteTimeout 刷新
// 套接字的写超时 把 I/O 超时也纳入 Send 失败级联关闭流水线的同一条路径
type deadlineWriter struct {
	nc      net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		if err := w.nc.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, errors.Wrap(err, "conn: set write deadline")
		}
	}
	n, err := w.nc.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "conn: write")
	}
	return n, nil
}
