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

package zerocopy

import "bytes"

// LineState 描述 ScanLine 的扫描结果
type LineState int

const (
	// LineIncomplete 游标剩余字节中尚未出现 `\r` 或者 `\r` 恰好位于末尾
	// 需要等待更多字节 游标不会被推进
	LineIncomplete LineState = iota

	// LineOK 找到了完整的 `\r\n` 结尾
	LineOK

	// LineMalformed `\r` 之后紧跟的字节不是 `\n`
	LineMalformed
)

// Cursor 是对一段字节切片的零拷贝视图 供 RESP 解码器使用
//
// 与 Buffer 不同 Cursor 不持有状态之外的任何东西: 它只是一个 (offset, 整段 buf) 的轻量包装
// 所有 Peek/Take 方法均不拷贝底层字节 调用方不得修改返回的切片
type Cursor struct {
	buf []byte
	off int
}

// NewCursor 创建并返回 *Cursor 实例
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos 返回当前已消费的字节数
func (c *Cursor) Pos() int {
	return c.off
}

// Len 返回游标之后尚未消费的字节数
func (c *Cursor) Len() int {
	return len(c.buf) - c.off
}

// ScanLine 在不推进游标的情况下 尝试找到下一个 `\r\n` 分隔的行
//
// 返回的 line 不包含 `\r\n` 本身 游标此时仍停留在行首 调用 TakeLine 才会真正推进
func (c *Cursor) ScanLine() (line []byte, state LineState) {
	rest := c.buf[c.off:]
	idx := bytes.IndexByte(rest, '\r')
	if idx == -1 || idx+1 >= len(rest) {
		return nil, LineIncomplete
	}
	if rest[idx+1] != '\n' {
		return rest[:idx], LineMalformed
	}
	return rest[:idx], LineOK
}

// TakeLine 推进游标越过一行已确认存在的 `\r\n` 数据
//
// 调用前提是上一次 ScanLine 返回了 LineOK; 返回值与之前 ScanLine 的 line 一致
func (c *Cursor) TakeLine() []byte {
	line, state := c.ScanLine()
	if state != LineOK {
		panic("zerocopy: TakeLine called without a confirmed LineOK")
	}
	c.off += len(line) + 2
	return line
}

// TakeN 尝试取出接下来的 n 个字节 不足时返回 ok=false 且不推进游标
func (c *Cursor) TakeN(n int) (b []byte, ok bool) {
	if c.Len() < n {
		return nil, false
	}
	b = c.buf[c.off : c.off+n]
	c.off += n
	return b, true
}

// PeekN 返回接下来的 n 个字节而不推进游标 不足时返回 ok=false
func (c *Cursor) PeekN(n int) (b []byte, ok bool) {
	if c.Len() < n {
		return nil, false
	}
	return c.buf[c.off : c.off+n], true
}
