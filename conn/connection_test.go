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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/respcore/respcore/pipeline"
	"github.com/respcore/respcore/resp"
)

// fakeServer 是一个在 net.Pipe 对端充当 Redis 服务端的测试替身: 它逐帧解码收到的命令
// 并调用 respond 来决定如何应答 respond 返回 nil 表示静默忽略该命令 (不回复)
type fakeServer struct {
	nc net.Conn
}

func (s *fakeServer) serve(t *testing.T, respond func(cmd resp.Value) []resp.Value) {
	t.Helper()
	go func() {
		var leftover []byte
		chunk := make([]byte, 4096)
		for {
			n, err := s.nc.Read(chunk)
			if err != nil {
				return
			}
			leftover = append(leftover, chunk[:n]...)
			for {
				v, consumed, derr := resp.Decode(leftover)
				if derr == resp.ErrIncomplete {
					break
				}
				if derr != nil {
					return
				}
				leftover = leftover[consumed:]
				for _, reply := range respond(v) {
					if err := resp.Encode(reply, s.nc); err != nil {
						return
					}
				}
			}
		}
	}()
}

func pipeDialer(serverConn net.Conn) Dialer {
	return func(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
		return serverConn, nil
	}
}

func newTestConnection(t *testing.T, cfg Config, respond func(cmd resp.Value) []resp.Value) (*Connection, *fakeServer) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	srv := &fakeServer{nc: serverSide}
	srv.serve(t, respond)

	c, err := DialWith(context.Background(), cfg, pipeDialer(clientSide))
	require.NoError(t, err)
	return c, srv
}

func echoOK(resp.Value) []resp.Value {
	return []resp.Value{resp.SimpleString("OK")}
}

func TestConnectionHandshakeAndSend(t *testing.T) {
	cfg := Config{Address: "test"}
	c, _ := newTestConnection(t, cfg, func(cmd resp.Value) []resp.Value {
		name := cmd.Array[0].Bulk
		if string(name) == "PING" {
			return []resp.Value{resp.SimpleString("PONG")}
		}
		return []resp.Value{resp.SimpleString("OK")}
	})
	defer c.Close()

	require.Equal(t, StateReady, c.State())

	v, err := c.Send(context.Background(), resp.NewCommand("PING"))
	require.NoError(t, err)
	assert.True(t, v.Equal(resp.SimpleString("PONG")))
}

func TestConnectionHandshakeSequence(t *testing.T) {
	cfg := Config{
		Address:         "test",
		Password:        "secret",
		InitialDatabase: 3,
		ClientName:      "respcore-test",
	}

	var seen []string
	c, _ := newTestConnection(t, cfg, func(cmd resp.Value) []resp.Value {
		parts := make([]string, len(cmd.Array))
		for i, v := range cmd.Array {
			parts[i] = string(v.Bulk)
		}
		seen = append(seen, parts[0])
		return []resp.Value{resp.SimpleString("OK")}
	})
	defer c.Close()

	require.Equal(t, StateReady, c.State())
	assert.Equal(t, []string{"AUTH", "SELECT", "CLIENT"}, seen)
}

func TestConnectionHandshakeFailurePreventsReady(t *testing.T) {
	cfg := Config{Address: "test", Password: "wrong"}
	clientSide, serverSide := net.Pipe()
	srv := &fakeServer{nc: serverSide}
	srv.serve(t, func(resp.Value) []resp.Value {
		return []resp.Value{resp.Error("WRONGPASS invalid username-password pair")}
	})

	_, err := DialWith(context.Background(), cfg, pipeDialer(clientSide))
	require.Error(t, err)
}

func TestConnectionSendRejectedOutsideReady(t *testing.T) {
	cfg := Config{Address: "test"}
	c, _ := newTestConnection(t, cfg, echoOK)
	defer c.Close()

	c.state.Store(int32(StateClosing))
	_, err := c.Send(context.Background(), resp.NewCommand("PING"))
	require.ErrorIs(t, err, ErrNotReady)
}

func TestConnectionOrderPreservation(t *testing.T) {
	cfg := Config{Address: "test"}
	c, _ := newTestConnection(t, cfg, func(cmd resp.Value) []resp.Value {
		// 原样回显第一个参数 (一个字母) 以验证响应与请求按序对应
		return []resp.Value{resp.BulkString(cmd.Array[1].Bulk)}
	})
	defer c.Close()

	for i := 0; i < 20; i++ {
		v, err := c.Send(context.Background(), resp.NewCommand("ECHO", string(rune('a'+i))))
		require.NoError(t, err)
		assert.Equal(t, string(rune('a'+i)), string(v.Bulk))
	}
}

func TestConnectionCloseIsIdempotentAndDrains(t *testing.T) {
	cfg := Config{Address: "test"}
	c, _ := newTestConnection(t, cfg, echoOK)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	_, err := c.Send(context.Background(), resp.NewCommand("PING"))
	require.ErrorIs(t, err, ErrNotReady)
}

func TestConnectionRemoteCloseInvokesClosureHook(t *testing.T) {
	cfg := Config{Address: "test"}
	clientSide, serverSide := net.Pipe()
	srv := &fakeServer{nc: serverSide}
	srv.serve(t, echoOK)

	c, err := DialWith(context.Background(), cfg, pipeDialer(clientSide))
	require.NoError(t, err)

	var closedCause error
	done := make(chan struct{})
	c.OnUnexpectedClosure(func(cause error) {
		closedCause = cause
		close(done)
	})

	_ = serverSide.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnUnexpectedClosure was never invoked")
	}
	assert.Error(t, closedCause)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnectionPushRoutedToSink(t *testing.T) {
	cfg := Config{Address: "test"}
	push := resp.Push([]resp.Value{resp.SimpleString("message"), resp.BulkStringFrom("ch"), resp.BulkStringFrom("hi")})

	var subReady = make(chan struct{})
	var sendPush = make(chan struct{})
	c, _ := newTestConnection(t, cfg, func(cmd resp.Value) []resp.Value {
		name := string(cmd.Array[0].Bulk)
		if name == "SUBSCRIBE" {
			go func() {
				<-subReady
				<-sendPush
			}()
			return []resp.Value{resp.Integer(1)}
		}
		return []resp.Value{resp.SimpleString("OK")}
	})
	defer c.Close()

	sub := c.PushSink().Subscribe(4)
	defer sub.Close()
	close(subReady)

	_, err := c.Send(context.Background(), resp.NewCommand("SUBSCRIBE", "ch"))
	require.NoError(t, err)

	// 手动把一条 Push 帧直接喂给 pipeline 以验证路由 (模拟服务端乱序推送到达)
	c.pipeline.OnInbound(push)

	got, ok := sub.Next(time.Second)
	require.True(t, ok)
	assert.True(t, got.Equal(push))
	close(sendPush)
}

func TestConnectionOversizedCommandRejectedWithoutClosingConnection(t *testing.T) {
	cfg := Config{Address: "test", WriteBufferCeiling: 32}
	c, _ := newTestConnection(t, cfg, echoOK)
	defer c.Close()

	huge := resp.NewCommand("SET", "k", string(make([]byte, 256)))
	_, err := c.Send(context.Background(), huge)
	require.ErrorIs(t, err, pipeline.ErrWriteBufferFull)

	// 被拒绝的超限命令不应该祸及连接上其它正常大小的命令
	assert.Equal(t, StateReady, c.State())
	v, err := c.Send(context.Background(), resp.NewCommand("PING"))
	require.NoError(t, err)
	assert.True(t, v.Equal(resp.SimpleString("OK")))
}

func TestConnectionSendContextCancellation(t *testing.T) {
	cfg := Config{Address: "test"}
	blocked := make(chan struct{})
	c, _ := newTestConnection(t, cfg, func(cmd resp.Value) []resp.Value {
		name := string(cmd.Array[0].Bulk)
		if name == "SLOW" {
			<-blocked
			return nil
		}
		return []resp.Value{resp.SimpleString("OK")}
	})
	defer func() {
		close(blocked)
		c.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, resp.NewCommand("SLOW"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
