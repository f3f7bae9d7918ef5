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

// Package resp 实现 RESP2/RESP3 (Redis Serialization Protocol) 的编解码
//
// 协议细节参见 https://redis.io/docs/latest/develop/reference/protocol-spec/
// 本包只关心线上字节与 Value 之间的转换 不解释任何具体 Redis 命令的语义
package resp

import "fmt"

// Kind 标识 Value 持有的 RESP 数据类型
type Kind int

const (
	// KindNull 由 RESP3 `_\r\n` 解码得到 编码为 `$-1\r\n`; `$-1\r\n` / `*-1\r\n` 解码为
	// null bulk string / null array 它们在 Equal 下与 Null 相等
	KindNull Kind = iota
	// KindSimpleString 对应 `+...\r\n`
	KindSimpleString
	// KindBulkString 对应 `$<n>\r\n...\r\n` n >= 0
	KindBulkString
	// KindInteger 对应 `:...\r\n`
	KindInteger
	// KindError 对应 `-...\r\n`
	KindError
	// KindArray 对应 `*<n>\r\n` 后跟 n 个子值
	KindArray
	// KindBoolean RESP3 `#t\r\n` / `#f\r\n`
	KindBoolean
	// KindDouble RESP3 `,...\r\n`
	KindDouble
	// KindBigNumber RESP3 `(...\r\n`
	KindBigNumber
	// KindMap RESP3 `%<n>\r\n` 后跟 n 对子值
	KindMap
	// KindSet RESP3 `~<n>\r\n` 后跟 n 个子值
	KindSet
	// KindPush RESP3 `><n>\r\n` 后跟 n 个子值 第一个为 SimpleString 标签
	KindPush
	// KindAttribute RESP3 `|<n>\r\n` 后跟 n 对子值 修饰紧随其后的一个值
	KindAttribute
	// KindVerbatimString RESP3 `=<n>\r\n` 载荷以 3 字节 marker + `:` 开头
	KindVerbatimString
	// KindBlobError RESP3 `!<n>\r\n` 二进制安全的错误信息
	KindBlobError
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindSimpleString:
		return "SimpleString"
	case KindBulkString:
		return "BulkString"
	case KindInteger:
		return "Integer"
	case KindError:
		return "Error"
	case KindArray:
		return "Array"
	case KindBoolean:
		return "Boolean"
	case KindDouble:
		return "Double"
	case KindBigNumber:
		return "BigNumber"
	case KindMap:
		return "Map"
	case KindSet:
		return "Set"
	case KindPush:
		return "Push"
	case KindAttribute:
		return "Attribute"
	case KindVerbatimString:
		return "VerbatimString"
	case KindBlobError:
		return "BlobError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KV 是 Map/Attribute 中的一组有序键值对 Key/Value 均为任意 Value
type KV struct {
	Key   Value
	Value Value
}

// Value 是 RESP 协议值的标签联合 (tagged union)
//
// 某一时刻只有与 Kind 对应的字段有意义 其余字段为零值 调用方不应跨 Kind 读取字段
// Bulk == nil 且 Kind == KindBulkString 表示 null bulk string
// Bulk != nil 但 len(Bulk) == 0 表示空字符串 二者在语义上不同
type Value struct {
	Kind Kind

	// Str 承载 SimpleString / Error / BigNumber 的文本负载
	Str []byte

	// Bulk 承载 BulkString 的二进制负载 nil 表示 null bulk
	Bulk []byte

	// Int 承载 Integer
	Int int64

	// Bool 承载 Boolean
	Bool bool

	// Double 承载 Double
	Double float64

	// Marker 承载 VerbatimString 的 3 字节类型标记 如 "txt" "mkd"
	Marker [3]byte

	// Array 承载 Array / Set / Push 的子元素序列 nil 表示 null array
	Array []Value

	// Pairs 承载 Map / Attribute 的有序键值对
	Pairs []KV
}

// Null 返回规范的空值
func Null() Value { return Value{Kind: KindNull} }

// SimpleString 构造一个 SimpleString 值
func SimpleString(s string) Value { return Value{Kind: KindSimpleString, Str: []byte(s)} }

// BulkString 构造一个非空 BulkString 值 b 为 nil 时等价于 NullBulkString
func BulkString(b []byte) Value {
	if b == nil {
		return NullBulkString()
	}
	return Value{Kind: KindBulkString, Bulk: b}
}

// BulkStringFrom 以 string 构造一个 BulkString 值 永远非 null
func BulkStringFrom(s string) Value {
	return Value{Kind: KindBulkString, Bulk: []byte(s)}
}

// NullBulkString 构造 BulkString(nil) 即 null bulk
func NullBulkString() Value {
	return Value{Kind: KindBulkString, Bulk: nil}
}

// Integer 构造一个 Integer 值
func Integer(n int64) Value { return Value{Kind: KindInteger, Int: n} }

// Error 构造一个 Error 值
func Error(msg string) Value { return Value{Kind: KindError, Str: []byte(msg)} }

// Array 构造一个 Array 值 xs 为 nil 时表示 null array
func Array(xs []Value) Value { return Value{Kind: KindArray, Array: xs} }

// Boolean 构造一个 RESP3 Boolean 值
func Boolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// Double 构造一个 RESP3 Double 值
func Double(f float64) Value { return Value{Kind: KindDouble, Double: f} }

// BigNumber 构造一个 RESP3 BigNumber 值 s 为十进制数字字符串
func BigNumber(s string) Value { return Value{Kind: KindBigNumber, Str: []byte(s)} }

// Map 构造一个 RESP3 Map 值
func Map(pairs []KV) Value { return Value{Kind: KindMap, Pairs: pairs} }

// Set 构造一个 RESP3 Set 值 RESP3 没有为 Set 单独定义 null 的线上形式 (那是 RESP2 null
// array 的遗留编码) 因此 nil 在这里被当作空集合 而不是 null: 传入 nil 得到的是一个长度为
// 0 的非 nil Array 以保证 编码后再解码 与构造时 Equal
func Set(xs []Value) Value {
	if xs == nil {
		xs = []Value{}
	}
	return Value{Kind: KindSet, Array: xs}
}

// Push 构造一个 RESP3 Push 值 调用方需保证 len(xs) >= 1 且 xs[0].Kind == KindSimpleString
// 与 Set 同理 nil 被当作空集合 而不是 null
func Push(xs []Value) Value {
	if xs == nil {
		xs = []Value{}
	}
	return Value{Kind: KindPush, Array: xs}
}

// Attribute 构造一个 RESP3 Attribute 值
func Attribute(pairs []KV) Value { return Value{Kind: KindAttribute, Pairs: pairs} }

// VerbatimString 构造一个 RESP3 VerbatimString 值 marker 长度必须为 3 (如 "txt")
func VerbatimString(marker string, body []byte) Value {
	var m [3]byte
	copy(m[:], marker)
	return Value{Kind: KindVerbatimString, Marker: m, Bulk: body}
}

// BlobError 构造一个 RESP3 BlobError 值
func BlobError(msg []byte) Value { return Value{Kind: KindBlobError, Bulk: msg} }

// IsNull 判断当前值是否表示空值 (Null / null bulk / null array)
//
// Set 和 Push 没有独立的 null 线上形式 (见 Set/Push 的构造函数) 所以不在此列判定之内:
// 它们的 Array 字段为 nil 只会发生在绕过构造函数直接拼出 Value 字面量的场景
func (v Value) IsNull() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindBulkString, KindVerbatimString, KindBlobError:
		return v.Bulk == nil
	case KindArray:
		return v.Array == nil
	default:
		return false
	}
}

// Equal 判断两个 Value 在语义上是否相等 用于测试中的往返比较
//
// Null 与任何 IsNull 为真的值 (null bulk / null array 等) 相等
func (v Value) Equal(o Value) bool {
	if v.Kind == KindNull || o.Kind == KindNull {
		return v.IsNull() && o.IsNull()
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindSimpleString, KindError, KindBigNumber:
		return string(v.Str) == string(o.Str)
	case KindBulkString, KindBlobError:
		return bytesEqual(v.Bulk, o.Bulk)
	case KindVerbatimString:
		return v.Marker == o.Marker && bytesEqual(v.Bulk, o.Bulk)
	case KindInteger:
		return v.Int == o.Int
	case KindBoolean:
		return v.Bool == o.Bool
	case KindDouble:
		return v.Double == o.Double || (v.Double != v.Double && o.Double != o.Double) // NaN == NaN for our purposes
	case KindArray, KindSet, KindPush:
		if (v.Array == nil) != (o.Array == nil) {
			return false
		}
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	case KindMap, KindAttribute:
		if len(v.Pairs) != len(o.Pairs) {
			return false
		}
		for i := range v.Pairs {
			if !v.Pairs[i].Key.Equal(o.Pairs[i].Key) || !v.Pairs[i].Value.Equal(o.Pairs[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
