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

// Package pipeline 实现单条连接上的命令流水线: 一个 FIFO 队列把出站请求与入站回复按发送顺序
// 一一对应起来 RESP 协议本身不携带请求 id 因此这种顺序配对是协议设计的一部分 而不是权宜之计
package pipeline

import (
	"io"
	"sync"

	"github.com/respcore/respcore/internal/bufbytes"
	"github.com/respcore/respcore/internal/fasttime"
	"github.com/respcore/respcore/resp"
)

// Result 是一个 completion 被解决时携带的数据: 要么是成功解析的 RESPValue (包含服务端 Error)
// 要么是一个 Go error (连接关闭等)
type Result struct {
	Value resp.Value
	Err   error
}

// Completion 是单次解析的一次性句柄 缓冲大小固定为 1 发送方写入后即可丢弃 不阻塞生产者
type Completion chan Result

// NewCompletion 创建一个缓冲为 1 的 completion 通道
func NewCompletion() Completion {
	return make(Completion, 1)
}

// PendingRequest 描述一个已发送但尚未收到回复的命令
type PendingRequest struct {
	Completion  Completion
	SubmittedAt int64 // unix 秒 来自 internal/fasttime 只用于诊断 不要求高精度
}

// CommandPipeline 是一条连接上的命令流水线
//
// 按照设计 只有连接自身的读 goroutine 调用 OnInbound 而 Send 允许被该连接上的多个调用方
// goroutine 并发调用 因此 deque 与出站字节的原子性由一把锁保证: 一次 Send 要么在锁内完成
// "记入 outbound + 入队" 两件事 要么两件都不做 绝不会出现字节已排队但 completion 未入队
// (或反过来) 的中间状态
//
// outbound 用 internal/bufbytes 累积自上次刷写以来所有已提交但尚未写出的帧: Send 只把
// 字节追加进去并立刻返回 真正的 sink.Write 由当时唯一持有 flushing 标记的那个调用方
// goroutine 代为执行 其间并发到达的其它 Send 只需把各自的帧接在 outbound 末尾 就能被同
// 一次系统调用写出去 —— 这是并发 Send 之间合并写系统调用的地方 outbound 的容量上限同时
// 就是背压阈值: 累积字节超过它 Send 立即以 ErrWriteBufferFull 失败 不会有任何字节入队
type CommandPipeline struct {
	mu       sync.Mutex
	sink     io.Writer
	deque    []*PendingRequest
	closed   bool
	outbound *bufbytes.Bytes
	ceiling  int
	flushing bool

	pushSink *PushSink

	onUnexpectedClosure func(cause error)
	closeHookOnce       sync.Once
}

// New 创建一个写入 sink 的 CommandPipeline pushSink 可为 nil (此时 Push 帧被静默丢弃)
// writeBufferCeiling 是 outbound 累积字节的上限 超出后 Send 立即以 ErrWriteBufferFull 失败
func New(sink io.Writer, pushSink *PushSink, writeBufferCeiling int) *CommandPipeline {
	return &CommandPipeline{
		sink:     sink,
		pushSink: pushSink,
		outbound: bufbytes.New(writeBufferCeiling),
		ceiling:  writeBufferCeiling,
	}
}

// OnUnexpectedClosure 注册一个回调 当连接因非本地发起的关闭 (远端 EOF I/O 失败 协议错误)
// 而关闭时恰好调用一次 本地发起的 Close(nil) 不会触发它
func (p *CommandPipeline) OnUnexpectedClosure(fn func(cause error)) {
	p.mu.Lock()
	p.onUnexpectedClosure = fn
	p.mu.Unlock()
}

// Send 把 frame 记入 outbound 并把 completion 记为待决 记账与入队在同一把锁内完成 对
// OnInbound 的配对而言是原子的: 一旦这里返回 nil frame 相对其它已提交的帧的顺序已经确定
// 之后要么随本次调用触发的刷写一起写出 要么被已经在刷写的另一个调用方捎带写出
//
// 真正的 sink.Write 失败被视为致命 I/O 错误 会级联关闭整条流水线 并通过 deque 通知所有
// 受影响的 completion (包括那些字节已经合并进同一次失败 Write 的其它待决请求)
func (p *CommandPipeline) Send(frame []byte, completion Completion) error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		err := NewConnectionClosedError(nil)
		completion <- Result{Err: err}
		return err
	}

	if p.outbound.Len()+len(frame) > p.ceiling {
		p.mu.Unlock()
		completion <- Result{Err: ErrWriteBufferFull}
		return ErrWriteBufferFull
	}

	p.outbound.Write(frame)
	p.deque = append(p.deque, &PendingRequest{
		Completion:  completion,
		SubmittedAt: fasttime.UnixTimestamp(),
	})

	if p.flushing {
		// 已经有另一个 goroutine 在刷写 outbound 我们的帧会被它连带写出
		p.mu.Unlock()
		return nil
	}
	p.flushing = true
	p.mu.Unlock()

	return p.drain()
}

// drain 反复把 outbound 中累积的字节整体写出 直到没有新字节到达为止 每一轮都拷贝出当前
// 的 outbound 内容后立刻 Reset 并解锁 再在锁外执行真正的 Write 把一次系统调用之外的时间
// 留给并发的 Send 继续向 outbound 追加
func (p *CommandPipeline) drain() error {
	for {
		p.mu.Lock()
		if p.closed || p.outbound.Len() == 0 {
			p.flushing = false
			p.mu.Unlock()
			return nil
		}
		batch := p.outbound.Clone()
		p.outbound.Reset()
		p.mu.Unlock()

		if _, err := p.sink.Write(batch); err != nil {
			p.Close(err)
			return err
		}
	}
}

// OnInbound 把一个解析成功的 RESPValue 分发给队首的 completion 或者 (对 Push 帧而言) 推送宿
//
// 调用方只应从该连接唯一的读 goroutine 调用本方法 从而保证队首出队不会发生竞争
func (p *CommandPipeline) OnInbound(v resp.Value) {
	if v.Kind == resp.KindPush {
		if p.pushSink != nil {
			p.pushSink.Publish(v)
		}
		return
	}

	p.mu.Lock()
	if len(p.deque) == 0 {
		p.mu.Unlock()
		return
	}
	req := p.deque[0]
	p.deque = p.deque[1:]
	p.mu.Unlock()

	req.Completion <- Result{Value: v}
}

// Close 关闭流水线 排空 deque 并让每一个待决 completion 以 ConnectionClosedError{Cause: cause} 完成
//
// 多次调用是幂等的; 若这是首次关闭且 cause 非 nil 会调用一次 OnUnexpectedClosure 钩子 (若已注册)
func (p *CommandPipeline) Close(cause error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.deque
	p.deque = nil
	hook := p.onUnexpectedClosure
	p.mu.Unlock()

	for _, req := range pending {
		req.Completion <- Result{Err: NewConnectionClosedError(cause)}
	}

	if cause != nil && hook != nil {
		p.closeHookOnce.Do(func() {
			hook(cause)
		})
	}
}

// Pending 返回当前待决请求数量 主要供 metrics/测试观察
func (p *CommandPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deque)
}

// Closed 返回流水线是否已关闭
func (p *CommandPipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
