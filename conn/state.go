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

// Package conn 实现单条 Redis 连接的生命周期: 握手 读循环 写路径与状态机
package conn

// State 描述 Connection 生命周期所处的阶段
type State int32

const (
	// StateOpening 传输层刚刚建立 尚未开始握手
	StateOpening State = iota
	// StateAuthenticating 正在执行 AUTH/SELECT/CLIENT SETNAME 握手序列
	StateAuthenticating
	// StateReady 握手完成 可以接受 Send 调用
	StateReady
	// StateClosing 正在关闭: 已发起关闭但套接字与 pipeline 尚未完全释放
	StateClosing
	// StateClosed 连接已完全释放 所有待决请求均已失败
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "Opening"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
