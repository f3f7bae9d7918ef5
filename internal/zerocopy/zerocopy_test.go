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

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// readWriteBlockSize 模拟连接读循环单次 socket 读取的字节数 仅用于基准测试
const readWriteBlockSize = 4096

func TestZeroCopy(t *testing.T) {
	t.Run("Read", func(t *testing.T) {
		n := 64
		buf := NewBuffer(bytes.Repeat([]byte("a"), n*readWriteBlockSize))

		for i := 0; i < n; i++ {
			_, err := buf.Read(readWriteBlockSize)
			assert.NoError(t, err)
		}
		_, err := buf.Read(1)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("Close", func(t *testing.T) {
		buf := NewBuffer(bytes.Repeat([]byte("a"), 1024))
		buf.Close()
		_, err := buf.Read(1)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("Remaining", func(t *testing.T) {
		buf := NewBuffer([]byte("hello world"))
		_, err := buf.Read(6)
		assert.NoError(t, err)
		assert.Equal(t, []byte("world"), buf.Remaining())
	})

	t.Run("Remaining after full consume", func(t *testing.T) {
		buf := NewBuffer([]byte("abc"))
		_, err := buf.Read(3)
		assert.NoError(t, err)
		assert.Equal(t, []byte{}, buf.Remaining())
	})
}

func TestCursor(t *testing.T) {
	t.Run("ScanLine complete", func(t *testing.T) {
		c := NewCursor([]byte("+OK\r\nrest"))
		line, state := c.ScanLine()
		assert.Equal(t, LineOK, state)
		assert.Equal(t, []byte("+OK"), line)
		assert.Equal(t, 0, c.Pos())

		got := c.TakeLine()
		assert.Equal(t, []byte("+OK"), got)
		assert.Equal(t, 5, c.Pos())
		assert.Equal(t, 4, c.Len())
	})

	t.Run("ScanLine incomplete no CR", func(t *testing.T) {
		c := NewCursor([]byte("+OK"))
		_, state := c.ScanLine()
		assert.Equal(t, LineIncomplete, state)
		assert.Equal(t, 0, c.Pos())
	})

	t.Run("ScanLine incomplete trailing CR", func(t *testing.T) {
		c := NewCursor([]byte("+OK\r"))
		_, state := c.ScanLine()
		assert.Equal(t, LineIncomplete, state)
		assert.Equal(t, 0, c.Pos())
	})

	t.Run("ScanLine malformed terminator", func(t *testing.T) {
		c := NewCursor([]byte("+OK\rX"))
		line, state := c.ScanLine()
		assert.Equal(t, LineMalformed, state)
		assert.Equal(t, []byte("+OK"), line)
	})

	t.Run("TakeLine panics without confirmed LineOK", func(t *testing.T) {
		c := NewCursor([]byte("+OK"))
		assert.Panics(t, func() {
			c.TakeLine()
		})
	})

	t.Run("TakeN and PeekN", func(t *testing.T) {
		c := NewCursor([]byte("foobar"))
		peek, ok := c.PeekN(3)
		assert.True(t, ok)
		assert.Equal(t, []byte("foo"), peek)
		assert.Equal(t, 0, c.Pos())

		taken, ok := c.TakeN(3)
		assert.True(t, ok)
		assert.Equal(t, []byte("foo"), taken)
		assert.Equal(t, 3, c.Pos())

		_, ok = c.TakeN(10)
		assert.False(t, ok)
		assert.Equal(t, 3, c.Pos())

		rest, ok := c.TakeN(3)
		assert.True(t, ok)
		assert.Equal(t, []byte("bar"), rest)
	})

	t.Run("multiple lines in sequence", func(t *testing.T) {
		c := NewCursor([]byte("*2\r\n$3\r\nfoo\r\n"))
		assert.Equal(t, []byte("*2"), c.TakeLine())
		assert.Equal(t, []byte("$3"), c.TakeLine())
		body, ok := c.TakeN(3)
		assert.True(t, ok)
		assert.Equal(t, []byte("foo"), body)
		crlf, ok := c.TakeN(2)
		assert.True(t, ok)
		assert.Equal(t, []byte("\r\n"), crlf)
		assert.Equal(t, 0, c.Len())
	})
}

func BenchmarkZeroCopyBuffer(b *testing.B) {
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := NewBuffer(nil)
			buf.Write(bytes.Repeat([]byte("a"), 65507))
			for {
				data, err := buf.Read(readWriteBlockSize)
				if err != nil {
					break
				}
				_ = data // 避免编译器优化
			}
		}
	})
}

func BenchmarkBuffer(b *testing.B) {
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := bytes.NewBuffer(nil)
			buf.Write(bytes.Repeat([]byte("a"), 65507))
			for {
				data := make([]byte, readWriteBlockSize)
				_, err := buf.Read(data)
				if err != nil {
					break
				}
			}
		}
	})
}

func BenchmarkCursorScanLine(b *testing.B) {
	data := bytes.Repeat([]byte("*2\r\n$3\r\nfoo\r\n"), 64)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := NewCursor(data)
		for c.Len() > 0 {
			_, state := c.ScanLine()
			if state != LineOK {
				break
			}
			c.TakeLine()
		}
	}
}
