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

import "github.com/pkg/errors"

// ErrIncomplete 表示缓冲区中的字节不足以构成一个完整的帧 不是真正的错误
//
// Decode 返回 ErrIncomplete 时保证 consumed == 0 调用方应在追加更多字节后重试
var ErrIncomplete = errors.New("resp: incomplete frame")

// 以下均为致命的解析错误 一旦出现即应终止所在连接 不存在任何恢复路径
var (
	// ErrInvalidToken 首字节不属于已知的 RESP 类型标记
	ErrInvalidToken = errors.New("resp: invalid type token")

	// ErrMalformedTerminator 行内容之后紧跟的字节不是 `\n` 或者缺少前导 `\r`
	ErrMalformedTerminator = errors.New("resp: malformed line terminator")

	// ErrMalformedInteger 整数行或长度行为空 非数字或溢出 int64; RESP3 Double 行无法解析时也返回它
	ErrMalformedInteger = errors.New("resp: malformed integer")

	// ErrInvalidBulkStringSize 长度或个数声明非法: `$` `*` 小于 -1; `=` `!` `%` `|` `~` `>` 为负;
	// `>` 为 0 或首个元素不是 SimpleString
	ErrInvalidBulkStringSize = errors.New("resp: invalid bulk string size")

	// ErrBulkStringSizeMismatch bulk string 声明长度之后未能取得匹配的 CRLF
	ErrBulkStringSizeMismatch = errors.New("resp: bulk string size mismatch")

	// ErrMalformedBoolean `#` 之后的字符不是 't' 或 'f'
	ErrMalformedBoolean = errors.New("resp: malformed boolean")

	// ErrRecursionTooDeep 嵌套聚合深度超过 maxRecursionDepth
	ErrRecursionTooDeep = errors.New("resp: recursion too deep")
)

// IsParseError 判断 err 是否为上述致命解析错误之一 (不包含 ErrIncomplete)
func IsParseError(err error) bool {
	switch errors.Cause(err) {
	case ErrInvalidToken, ErrMalformedTerminator, ErrMalformedInteger,
		ErrInvalidBulkStringSize, ErrBulkStringSizeMismatch,
		ErrMalformedBoolean, ErrRecursionTooDeep:
		return true
	default:
		return false
	}
}

// ServerError 把一个 RESP `Error` 回复包装成 Go error 供调用方在需要时 (例如握手阶段)
// 把服务端的错误回复当作失败处理; 正常的命令路径并不会自动做这个转换 -- 一个服务端 Error
// 回复本身在核心层面不是错误 由调用方自行决定是否视为失败 (参见 Value.Kind == KindError)
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "resp: server error: " + e.Message
}

// AsServerError 若 v 是一个 RESP Error 值 返回对应的 *ServerError 否则返回 nil
func AsServerError(v Value) *ServerError {
	if v.Kind != KindError {
		return nil
	}
	return &ServerError{Message: string(v.Str)}
}
