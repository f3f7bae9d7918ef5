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

package resp

import "bytes"

// Command 构造一条待发送的 Redis 命令帧
//
// 命令在线上永远编码为 RESP2 Array(BulkString...) 第一个元素是命令关键字 其余是参数
// 本包不理解任何具体命令的语义 命令目录 (GET/SET/ZADD 等) 是上层的职责
type Command struct {
	args []Value
}

// NewCommand 以命令关键字和任意数量的字符串参数构造一个 Command
func NewCommand(name string, args ...string) *Command {
	c := &Command{args: make([]Value, 0, 1+len(args))}
	c.args = append(c.args, BulkStringFrom(name))
	for _, a := range args {
		c.args = append(c.args, BulkStringFrom(a))
	}
	return c
}

// Name 返回命令关键字 (第一个参数) 供调用方做日志/指标标签使用
func (c *Command) Name() string {
	if len(c.args) == 0 {
		return ""
	}
	return string(c.args[0].Bulk)
}

// AppendArg 追加一个字符串参数 返回 Command 本身以便链式调用
func (c *Command) AppendArg(arg string) *Command {
	c.args = append(c.args, BulkStringFrom(arg))
	return c
}

// AppendArgBytes 追加一个二进制参数
func (c *Command) AppendArgBytes(arg []byte) *Command {
	c.args = append(c.args, BulkStringFrom(string(arg)))
	return c
}

// Value 返回该命令对应的 Array(BulkString...) Value 供 Encode 使用
func (c *Command) Value() Value {
	return Array(c.args)
}

// Encode 将命令编码为 RESP2 线上字节 等价于 Encode(c.Value(), &buf)
func (c *Command) Encode() []byte {
	var buf bytes.Buffer
	// Command 的编码路径不触碰任何 sink 错误 bytes.Buffer.Write 永不失败
	_ = Encode(c.Value(), &buf)
	return buf.Bytes()
}
