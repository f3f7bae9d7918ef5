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

package conn

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/respcore/respcore/internal/rescue"
	"github.com/respcore/respcore/internal/zerocopy"
	"github.com/respcore/respcore/logger"
	"github.com/respcore/respcore/metrics"
	"github.com/respcore/respcore/pipeline"
	"github.com/respcore/respcore/resp"
)

// Connection 包装一条双工字节流 (net.Conn) 与其上唯一的 CommandPipeline
//
// 除 Send 自身 (可被多个调用方 goroutine 并发调用, 由 pipeline 内部加锁保护) 外
// 连接的读循环状态只属于它自己的那个 goroutine: 入站缓冲 解码游标都不被其它 goroutine 触碰
type Connection struct {
	cfg Config
	nc  net.Conn

	pipeline *pipeline.CommandPipeline
	pushSink *pipeline.PushSink

	state   atomic.Int32
	closeMu sync.Mutex
	once    sync.Once
	closeErr error
	done    chan struct{}

	onUnexpectedClosure func(error)
}

// Dialer 抽象传输层建立方式 便于测试时替换为内存管道 (net.Pipe)
type Dialer func(ctx context.Context, address string, timeout time.Duration) (net.Conn, error)

// defaultDialer 使用标准库的 net.Dialer
func defaultDialer(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", address)
}

// Dial 建立一条新连接: 拨号 启动读循环 执行握手 成功后状态机进入 Ready
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	return DialWith(ctx, cfg, defaultDialer)
}

// DialWith 允许调用方注入自定义 Dialer (例如测试中用 net.Pipe 替代真实套接字)
func DialWith(ctx context.Context, cfg Config, dial Dialer) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nc, err := dial(ctx, cfg.Address, cfg.DialTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "conn: dial")
	}

	c := newConnection(cfg, nc)
	c.state.Store(int32(StateAuthenticating))

	if err := c.handshake(ctx); err != nil {
		c.teardown(err)
		return nil, err
	}

	c.state.Store(int32(StateReady))
	return c, nil
}

// newConnection 构造一个已拥有打开套接字 但尚未握手的 Connection 并启动读循环
func newConnection(cfg Config, nc net.Conn) *Connection {
	pushSink := pipeline.NewPushSink()
	sink := &deadlineWriter{nc: nc, timeout: cfg.WriteTimeout}
	p := pipeline.New(sink, pushSink, cfg.writeBufferCeiling())

	c := &Connection{
		cfg:      cfg,
		nc:       nc,
		pipeline: p,
		pushSink: pushSink,
		done:     make(chan struct{}),
	}
	p.OnUnexpectedClosure(c.onPipelineClosed)

	go c.readLoop()
	return c
}

// OnUnexpectedClosure 注册一个回调 在连接因非本地 Close 而终止时恰好调用一次
func (c *Connection) OnUnexpectedClosure(fn func(error)) {
	c.closeMu.Lock()
	c.onUnexpectedClosure = fn
	c.closeMu.Unlock()
}

func (c *Connection) onPipelineClosed(cause error) {
	c.closeMu.Lock()
	c.state.Store(int32(StateClosed))
	hook := c.onUnexpectedClosure
	c.closeMu.Unlock()
	if hook != nil {
		hook(cause)
	}
}

// State 返回当前生命周期阶段
func (c *Connection) State() State {
	return State(c.state.Load())
}

// PushSink 暴露该连接的 RESP3 Push 推送宿 调用方用它订阅服务端主动消息 (keyspace 通知等)
func (c *Connection) PushSink() *pipeline.PushSink {
	return c.pushSink
}

// handshake 依次执行 AUTH/SELECT/CLIENT SETNAME 任意一步失败 (包括服务端返回 Error 回复)
// 都使连接无法进入 Ready
func (c *Connection) handshake(ctx context.Context) error {
	if c.cfg.Password != "" {
		cmd := resp.NewCommand("AUTH")
		if c.cfg.Username != "" {
			cmd.AppendArg(c.cfg.Username)
		}
		cmd.AppendArg(c.cfg.Password)
		if err := c.handshakeSend(ctx, cmd); err != nil {
			return errors.Wrap(err, "conn: AUTH failed")
		}
	}

	if c.cfg.InitialDatabase > 0 {
		cmd := resp.NewCommand("SELECT", strconv.Itoa(c.cfg.InitialDatabase))
		if err := c.handshakeSend(ctx, cmd); err != nil {
			return errors.Wrap(err, "conn: SELECT failed")
		}
	}

	if c.cfg.ClientName != "" {
		cmd := resp.NewCommand("CLIENT", "SETNAME", c.cfg.ClientName)
		if err := c.handshakeSend(ctx, cmd); err != nil {
			return errors.Wrap(err, "conn: CLIENT SETNAME failed")
		}
	}

	return nil
}

// handshakeSend 与 sendRaw 不同之处在于: 握手阶段服务端的 Error 回复必须被当作失败处理
// 而不是像普通命令路径那样把 Error 原样交还给调用方裁决
func (c *Connection) handshakeSend(ctx context.Context, cmd *resp.Command) error {
	v, err := c.sendRaw(ctx, cmd)
	if err != nil {
		return err
	}
	if se := resp.AsServerError(v); se != nil {
		return se
	}
	return nil
}

// Send 提交一条命令并阻塞等待其回复 仅在 Ready 状态下被接受
// 其余状态下返回以 ErrNotReady 为 Cause 的 pipeline.ConnectionClosedError
func (c *Connection) Send(ctx context.Context, cmd *resp.Command) (resp.Value, error) {
	if c.State() != StateReady {
		return resp.Value{}, pipeline.NewConnectionClosedError(ErrNotReady)
	}

	v, err := c.sendRaw(ctx, cmd)
	if err != nil {
		metrics.ObserveCommand(cmd.Name(), "error")
	} else {
		metrics.ObserveCommand(cmd.Name(), "success")
	}
	return v, err
}

// sendRaw 不检查状态 供握手阶段在 Authenticating 状态下复用同一条提交路径
func (c *Connection) sendRaw(ctx context.Context, cmd *resp.Command) (resp.Value, error) {
	frame := cmd.Encode()
	completion := pipeline.NewCompletion()
	if err := c.pipeline.Send(frame, completion); err != nil {
		return resp.Value{}, err
	}

	select {
	case res := <-completion:
		return res.Value, res.Err
	case <-ctx.Done():
		// 请求已经上线 无法撤回 这里只是放弃等待 pipeline 仍会在将来某个时刻解决该 completion
		return resp.Value{}, ctx.Err()
	}
}

// Close 优雅关闭连接: 尽力发送 QUIT 关闭套接字 等待读循环结束并让流水线排空待决请求
//
// 多次调用是幂等的 后续调用返回与首次调用相同的结果
func (c *Connection) Close() error {
	c.once.Do(func() {
		c.state.Store(int32(StateClosing))

		quitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = c.sendRaw(quitCtx, resp.NewCommand("QUIT"))
		cancel()

		c.closeErr = c.teardown(nil)
	})
	return c.closeErr
}

// teardown 关闭套接字 关闭流水线 并等待读循环退出 供 Close 与握手失败两条路径共用
func (c *Connection) teardown(cause error) error {
	closeErr := c.nc.Close()
	c.pipeline.Close(cause)

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
	}

	c.state.Store(int32(StateClosed))
	if closeErr != nil {
		return errors.Wrap(closeErr, "conn: close socket")
	}
	return nil
}

// readLoop 是该连接唯一的入站处理 goroutine: 读取字节 喂给解码器 把解出的值分发给流水线
func (c *Connection) readLoop() {
	defer rescue.HandleCrash()
	defer close(c.done)

	buf := zerocopy.NewBuffer(nil)
	chunk := make([]byte, c.cfg.readBufferChunk())

	for {
		if c.cfg.ReadTimeout > 0 {
			if err := c.nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				c.fail(errors.Wrap(err, "conn: set read deadline"))
				return
			}
		}

		n, err := c.nc.Read(chunk)
		if n > 0 {
			combined := append(append([]byte{}, buf.Remaining()...), chunk[:n]...)
			buf.Write(combined)

			for {
				v, consumed, derr := resp.Decode(buf.Remaining())
				if derr == resp.ErrIncomplete {
					break
				}
				if derr != nil {
					c.fail(errors.Wrap(derr, "conn: protocol error"))
					return
				}
				if _, rerr := buf.Read(consumed); rerr != nil {
					c.fail(errors.Wrap(rerr, "conn: buffer consume"))
					return
				}
				c.pipeline.OnInbound(v)
			}
		}

		if err != nil {
			c.fail(err)
			return
		}
	}
}

// fail 把读循环的终止原因传递给流水线 日志记录一次 避免在 Close 发起的正常关闭时刷屏
func (c *Connection) fail(cause error) {
	logger.Warnf("conn: read loop terminating for %s: %v", c.cfg.Address, cause)
	c.pipeline.Close(cause)
}
