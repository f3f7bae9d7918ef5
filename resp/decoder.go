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
	"strconv"

	"github.com/pkg/errors"

	"github.com/respcore/respcore/internal/zerocopy"
)

// maxRecursionDepth 是聚合类型允许的最大嵌套深度 防御畸形或恶意服务端输入耗尽 goroutine 栈
const maxRecursionDepth = 128

// Decode 尝试从 buf 中解析出一个完整的 RESP 帧
//
// 返回值:
//   - consumed == 0, err == ErrIncomplete: buf 中的数据不足以构成一帧 调用方应在追加更多
//     字节后使用同一个 buf (前缀不变) 重新调用 Decode 本次调用不会产生任何副作用
//   - consumed > 0, err == nil: value 有效 buf[:consumed] 是其完整的线上编码
//   - err 为其他致命解析错误: 该连接应被视为协议错误 不可恢复
//
// Decode 对 buf 本身是只读的 也不持有任何跨调用状态 可安全地被不同 goroutine 并发调用
// (只要各自持有独立的 buf)
func Decode(buf []byte) (value Value, consumed int, err error) {
	c := zerocopy.NewCursor(buf)
	v, err := decodeValue(c, 0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, c.Pos(), nil
}

// decodeValue 从游标当前位置解析一个 Value 出现任何错误时不保证游标位置的正确性
// 调用方 (Decode) 只在返回 nil error 时才读取游标位置
func decodeValue(c *zerocopy.Cursor, depth int) (Value, error) {
	if depth > maxRecursionDepth {
		return Value{}, ErrRecursionTooDeep
	}

	tok, ok := c.PeekN(1)
	if !ok {
		return Value{}, ErrIncomplete
	}

	switch tok[0] {
	case '+':
		line, err := readLine(c)
		if err != nil {
			return Value{}, err
		}
		return SimpleString(string(line[1:])), nil

	case '-':
		line, err := readLine(c)
		if err != nil {
			return Value{}, err
		}
		return Error(string(line[1:])), nil

	case ':':
		line, err := readLine(c)
		if err != nil {
			return Value{}, err
		}
		n, perr := parseInt64(line[1:])
		if perr != nil {
			return Value{}, perr
		}
		return Integer(n), nil

	case '$':
		return decodeBulkString(c)

	case '=':
		return decodeVerbatimString(c)

	case '!':
		return decodeBlobError(c)

	case '*':
		return decodeAggregate(c, depth, '*')

	case '~':
		return decodeAggregate(c, depth, '~')

	case '>':
		return decodeAggregate(c, depth, '>')

	case '%':
		return decodeMapLike(c, depth, '%')

	case '|':
		return decodeMapLike(c, depth, '|')

	case '_':
		if _, err := readLine(c); err != nil {
			return Value{}, err
		}
		return Null(), nil

	case '#':
		line, err := readLine(c)
		if err != nil {
			return Value{}, err
		}
		body := line[1:]
		if len(body) != 1 {
			return Value{}, ErrMalformedBoolean
		}
		switch body[0] {
		case 't':
			return Boolean(true), nil
		case 'f':
			return Boolean(false), nil
		default:
			return Value{}, ErrMalformedBoolean
		}

	case ',':
		line, err := readLine(c)
		if err != nil {
			return Value{}, err
		}
		f, perr := parseFloat64(line[1:])
		if perr != nil {
			return Value{}, perr
		}
		return Double(f), nil

	case '(':
		line, err := readLine(c)
		if err != nil {
			return Value{}, err
		}
		return BigNumber(string(line[1:])), nil

	default:
		return Value{}, ErrInvalidToken
	}
}

// readLine 消费当前一整行 (包含首字节的类型标记) 直到并越过 CRLF
//
// 返回的切片包含首字节的类型标记; 调用方按需截取 line[1:] 作为负载
func readLine(c *zerocopy.Cursor) ([]byte, error) {
	line, state := c.ScanLine()
	switch state {
	case zerocopy.LineIncomplete:
		return nil, ErrIncomplete
	case zerocopy.LineMalformed:
		return nil, ErrMalformedTerminator
	}
	for _, b := range line {
		if b == '\n' {
			return nil, ErrMalformedTerminator
		}
	}
	return c.TakeLine(), nil
}

// parseInt64 将 b 解析为带符号 64 位整数 空串 非数字 溢出均映射为 ErrMalformedInteger
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, ErrMalformedInteger
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, errors.Wrap(ErrMalformedInteger, err.Error())
	}
	return n, nil
}

// parseFloat64 将 b 解析为 RESP3 Double 复用 ErrMalformedInteger 作为该行语义上的"长度/数值行解析失败"
func parseFloat64(b []byte) (float64, error) {
	if len(b) == 0 {
		return 0, ErrMalformedInteger
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, errors.Wrap(ErrMalformedInteger, err.Error())
	}
	return f, nil
}

// decodeBulkString 解析 `$` 开头的 bulk string 帧
func decodeBulkString(c *zerocopy.Cursor) (Value, error) {
	line, err := readLine(c)
	if err != nil {
		return Value{}, err
	}
	n, err := parseInt64(line[1:])
	if err != nil {
		return Value{}, err
	}
	if n == -1 {
		return NullBulkString(), nil
	}
	if n < -1 {
		return Value{}, ErrInvalidBulkStringSize
	}
	return readLengthPrefixedBody(c, n, func(body []byte) (Value, error) {
		return Value{Kind: KindBulkString, Bulk: append([]byte{}, body...)}, nil
	})
}

// decodeVerbatimString 解析 RESP3 `=` verbatim string 帧 载荷前 3 字节为类型标记 后跟 `:`
func decodeVerbatimString(c *zerocopy.Cursor) (Value, error) {
	line, err := readLine(c)
	if err != nil {
		return Value{}, err
	}
	n, err := parseInt64(line[1:])
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		return Value{}, ErrInvalidBulkStringSize
	}
	return readLengthPrefixedBody(c, n, func(body []byte) (Value, error) {
		if len(body) < 4 || body[3] != ':' {
			return Value{}, ErrMalformedTerminator
		}
		var marker [3]byte
		copy(marker[:], body[:3])
		return Value{Kind: KindVerbatimString, Marker: marker, Bulk: append([]byte{}, body[4:]...)}, nil
	})
}

// decodeBlobError 解析 RESP3 `!` blob error 帧 结构与 bulk string 相同
func decodeBlobError(c *zerocopy.Cursor) (Value, error) {
	line, err := readLine(c)
	if err != nil {
		return Value{}, err
	}
	n, err := parseInt64(line[1:])
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		return Value{}, ErrInvalidBulkStringSize
	}
	return readLengthPrefixedBody(c, n, func(body []byte) (Value, error) {
		return Value{Kind: KindBlobError, Bulk: append([]byte{}, body...)}, nil
	})
}

// readLengthPrefixedBody 读取恰好 n 字节的负载并校验其后紧跟 CRLF 再交给 build 构造最终 Value
//
// n 不足时返回 ErrIncomplete 且不推进游标; CRLF 缺失或错位时返回 ErrBulkStringSizeMismatch
func readLengthPrefixedBody(c *zerocopy.Cursor, n int64, build func([]byte) (Value, error)) (Value, error) {
	total := int(n) + 2
	if int64(total-2) != n {
		// n 超出 int 范围 平台上几乎不可能发生 但仍需防御溢出
		return Value{}, ErrInvalidBulkStringSize
	}
	if c.Len() < total {
		return Value{}, ErrIncomplete
	}

	body, ok := c.TakeN(int(n))
	if !ok {
		return Value{}, ErrIncomplete
	}
	term, ok := c.TakeN(2)
	if !ok || term[0] != '\r' || term[1] != '\n' {
		return Value{}, ErrBulkStringSizeMismatch
	}

	return build(body)
}

// decodeAggregate 解析 `*` `~` `>` 三类序列聚合 它们共享"长度行 + N 个子值"的结构
func decodeAggregate(c *zerocopy.Cursor, depth int, tok byte) (Value, error) {
	line, err := readLine(c)
	if err != nil {
		return Value{}, err
	}
	n, err := parseInt64(line[1:])
	if err != nil {
		return Value{}, err
	}

	if n == -1 {
		if tok == '*' {
			return Array(nil), nil
		}
		return Value{}, ErrInvalidBulkStringSize
	}
	if n < -1 {
		return Value{}, ErrInvalidBulkStringSize
	}
	if tok == '>' && n < 1 {
		return Value{}, ErrInvalidBulkStringSize
	}

	children := make([]Value, 0, n)
	for i := int64(0); i < n; i++ {
		child, cerr := decodeValue(c, depth+1)
		if cerr != nil {
			return Value{}, cerr
		}
		children = append(children, child)
	}

	if tok == '>' && children[0].Kind != KindSimpleString {
		return Value{}, ErrInvalidBulkStringSize
	}

	switch tok {
	case '*':
		return Array(children), nil
	case '~':
		return Set(children), nil
	default:
		return Push(children), nil
	}
}

// decodeMapLike 解析 `%` (Map) 与 `|` (Attribute) 共享"长度行 + 2N 个子值配对"的结构
func decodeMapLike(c *zerocopy.Cursor, depth int, tok byte) (Value, error) {
	line, err := readLine(c)
	if err != nil {
		return Value{}, err
	}
	n, err := parseInt64(line[1:])
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		return Value{}, ErrInvalidBulkStringSize
	}

	pairs := make([]KV, 0, n)
	for i := int64(0); i < n; i++ {
		k, kerr := decodeValue(c, depth+1)
		if kerr != nil {
			return Value{}, kerr
		}
		v, verr := decodeValue(c, depth+1)
		if verr != nil {
			return Value{}, verr
		}
		pairs = append(pairs, KV{Key: k, Value: v})
	}

	if tok == '%' {
		return Map(pairs), nil
	}
	return Attribute(pairs), nil
}
