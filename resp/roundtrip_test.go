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

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripSamples 是编码器可产生的值的代表性样本 覆盖每个 Kind 与关键边界 (null/empty/嵌套)
func roundTripSamples() []Value {
	return []Value{
		Null(),
		SimpleString(""),
		SimpleString("OK"),
		Error("ERR something went wrong"),
		Integer(0),
		Integer(-1),
		Integer(9223372036854775807),
		NullBulkString(),
		BulkStringFrom(""),
		BulkStringFrom("hello world"),
		BulkStringFrom("\x00\x01binary\xff"),
		Array(nil),
		Array([]Value{}),
		Array([]Value{Integer(1), BulkStringFrom("foo"), SimpleString("bar")}),
		Array([]Value{Array([]Value{Integer(1), Integer(2)}), Array([]Value{Integer(3)})}),
		Boolean(true),
		Boolean(false),
		Double(0),
		Double(-3.5),
		Double(1e100),
		BigNumber("123456789012345678901234567890"),
		Map([]KV{{Key: BulkStringFrom("k"), Value: BulkStringFrom("v")}}),
		Set(nil),
		Set([]Value{}),
		Set([]Value{Integer(1), Integer(2), Integer(3)}),
		Push([]Value{SimpleString("message"), BulkStringFrom("channel"), BulkStringFrom("payload")}),
		VerbatimString("txt", []byte("plain text")),
		BlobError([]byte("WRONGTYPE operation")),
	}
}

func TestRoundTrip(t *testing.T) {
	for i, v := range roundTripSamples() {
		var buf bytes.Buffer
		require.NoError(t, Encode(v, &buf))

		got, consumed, err := Decode(buf.Bytes())
		require.NoError(t, err, "sample %d: %+v", i, v)
		assert.Equal(t, buf.Len(), consumed, "sample %d: %+v", i, v)
		assert.True(t, v.Equal(got), "sample %d: encode/decode mismatch\nwant %+v\ngot  %+v", i, v, got)
	}
}

// TestIncrementalEquivalence 验证任意前缀长度投喂下 解码器要么报告 Incomplete (consumed 0)
// 要么在恰好喂够 consumed 字节时一次性返回与完整输入相同的结果 中途从不提前返回
func TestIncrementalEquivalence(t *testing.T) {
	for i, v := range roundTripSamples() {
		var buf bytes.Buffer
		require.NoError(t, Encode(v, &buf))
		full := buf.Bytes()

		want, wantConsumed, err := Decode(full)
		require.NoError(t, err, "sample %d", i)
		require.Equal(t, len(full), wantConsumed, "sample %d", i)

		for prefixLen := 0; prefixLen < len(full); prefixLen++ {
			got, consumed, perr := Decode(full[:prefixLen])
			require.ErrorIs(t, perr, ErrIncomplete, "sample %d prefix %d", i, prefixLen)
			assert.Equal(t, 0, consumed, "sample %d prefix %d", i, prefixLen)
			assert.True(t, got.Equal(Value{}), "sample %d prefix %d", i, prefixLen)
		}

		got, consumed, err := Decode(full)
		require.NoError(t, err, "sample %d", i)
		assert.Equal(t, len(full), consumed, "sample %d", i)
		assert.True(t, want.Equal(got), "sample %d", i)
	}
}

// TestNoOverReadProperty 验证解码器从不读取超出首帧消费范围之外的字节:
// 将首帧之外的内存替换为全 0xFF 的毒化数据 结果应不受影响
func TestNoOverReadProperty(t *testing.T) {
	for i, v := range roundTripSamples() {
		var buf bytes.Buffer
		require.NoError(t, Encode(v, &buf))
		frame := buf.Bytes()

		poisoned := append(append([]byte{}, frame...), bytes.Repeat([]byte{0xFF}, 32)...)
		got, consumed, err := Decode(poisoned)
		require.NoError(t, err, "sample %d", i)
		assert.Equal(t, len(frame), consumed, "sample %d", i)
		assert.True(t, v.Equal(got), "sample %d", i)
	}
}
