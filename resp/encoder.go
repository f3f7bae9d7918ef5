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
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// crlf 是 RESP 行终止符 所有编码路径均以此结尾
var crlf = []byte("\r\n")

// Encode 将 v 以位精确的 RESP 线上格式写入 sink
//
// 错误只有两种来源: sink.Write 本身失败 (写入错误会被 github.com/pkg/errors 包装后返回)
// 以及 v.Kind 不是已定义的 Kind
func Encode(v Value, sink io.Writer) error {
	switch v.Kind {
	case KindNull:
		return writeAll(sink, []byte("$-1\r\n"))

	case KindSimpleString:
		return writeLine(sink, '+', v.Str)

	case KindError:
		return writeLine(sink, '-', v.Str)

	case KindInteger:
		return writeLine(sink, ':', strconv.AppendInt(nil, v.Int, 10))

	case KindBulkString:
		return encodeBulkLike(sink, '$', v.Bulk)

	case KindBlobError:
		return encodeBulkLike(sink, '!', v.Bulk)

	case KindVerbatimString:
		if v.Bulk == nil {
			return writeAll(sink, []byte("=-1\r\n"))
		}
		body := make([]byte, 0, 4+len(v.Bulk))
		body = append(body, v.Marker[:]...)
		body = append(body, ':')
		body = append(body, v.Bulk...)
		return encodeBulkLike(sink, '=', body)

	case KindArray:
		return encodeAggregate(sink, '*', v.Array)

	case KindSet:
		return encodeAggregate(sink, '~', v.Array)

	case KindPush:
		return encodeAggregate(sink, '>', v.Array)

	case KindMap:
		return encodeMapLike(sink, '%', v.Pairs)

	case KindAttribute:
		return encodeMapLike(sink, '|', v.Pairs)

	case KindBoolean:
		if v.Bool {
			return writeAll(sink, []byte("#t\r\n"))
		}
		return writeAll(sink, []byte("#f\r\n"))

	case KindDouble:
		return writeLine(sink, ',', formatDouble(v.Double))

	case KindBigNumber:
		return writeLine(sink, '(', v.Str)

	default:
		return errors.Errorf("resp: encode: unknown kind %s", v.Kind)
	}
}

// formatDouble 按 RESP3 Double 的规范格式化 浮点数使用最短可往返形式 特殊值拼写为 inf/-inf/nan
func formatDouble(f float64) []byte {
	switch {
	case math.IsInf(f, 1):
		return []byte("inf")
	case math.IsInf(f, -1):
		return []byte("-inf")
	case math.IsNaN(f):
		return []byte("nan")
	default:
		return strconv.AppendFloat(nil, f, 'g', -1, 64)
	}
}

// writeLine 写入 `<tok><body>\r\n`
func writeLine(sink io.Writer, tok byte, body []byte) error {
	buf := make([]byte, 0, 1+len(body)+2)
	buf = append(buf, tok)
	buf = append(buf, body...)
	buf = append(buf, crlf...)
	return writeAll(sink, buf)
}

// encodeBulkLike 编码 bulk string / blob error 共享的 "长度行 + 负载 + CRLF" 结构
//
// body == nil 编码为该类型的 null 形式 (对 bulk string 即 $-1\r\n 与解析契约保持一致)
func encodeBulkLike(sink io.Writer, tok byte, body []byte) error {
	if body == nil {
		return writeAll(sink, []byte{tok, '-', '1', '\r', '\n'})
	}

	head := make([]byte, 0, 12)
	head = append(head, tok)
	head = strconv.AppendInt(head, int64(len(body)), 10)
	head = append(head, crlf...)
	if err := writeAll(sink, head); err != nil {
		return err
	}
	if err := writeAll(sink, body); err != nil {
		return err
	}
	return writeAll(sink, crlf)
}

// encodeAggregate 编码 Array / Set / Push 共享的 "长度行 + N 个子值" 结构
//
// nil 切片编码为 RESP2 风格的 null (-1): 这是 Array 合法的 null array 线上形式; Set 和 Push
// 的构造函数已经把 nil 规整成空集合 不会再走到这个分支 —— RESP3 没有为它们定义独立的 null
// 编码 所以这里只对真正绕过构造函数拼出的 Value 字面量生效
func encodeAggregate(sink io.Writer, tok byte, xs []Value) error {
	if xs == nil {
		return writeAll(sink, []byte{tok, '-', '1', '\r', '\n'})
	}

	head := make([]byte, 0, 12)
	head = append(head, tok)
	head = strconv.AppendInt(head, int64(len(xs)), 10)
	head = append(head, crlf...)
	if err := writeAll(sink, head); err != nil {
		return err
	}
	for _, x := range xs {
		if err := Encode(x, sink); err != nil {
			return err
		}
	}
	return nil
}

// encodeMapLike 编码 Map / Attribute 共享的 "长度行 + N 对子值" 结构
func encodeMapLike(sink io.Writer, tok byte, pairs []KV) error {
	head := make([]byte, 0, 12)
	head = append(head, tok)
	head = strconv.AppendInt(head, int64(len(pairs)), 10)
	head = append(head, crlf...)
	if err := writeAll(sink, head); err != nil {
		return err
	}
	for _, kv := range pairs {
		if err := Encode(kv.Key, sink); err != nil {
			return err
		}
		if err := Encode(kv.Value, sink); err != nil {
			return err
		}
	}
	return nil
}

func writeAll(sink io.Writer, p []byte) error {
	if _, err := sink.Write(p); err != nil {
		return errors.Wrap(err, "resp: encode: write failed")
	}
	return nil
}
