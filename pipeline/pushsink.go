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

package pipeline

import (
	"time"

	"github.com/respcore/respcore/internal/pubsub"
	"github.com/respcore/respcore/resp"
)

// PushSink 是 RESP3 Push 帧 (`>`) 的出站目的地
//
// 当一个请求与其回复之间夹杂着服务端主动推送的 Push 帧时 CommandPipeline 不会把它匹配到队首
// 的 completion 上 而是交给这里注册的 PushSink 一个连接上可以有多个订阅者 (例如多个调用方
// 都关心 `__keyspace@0__` 通知) 每个订阅者拥有独立的 (由 internal/pubsub 生成 google/uuid)
// 订阅 id 和带界的积压队列; 队列写满时最旧的消息不会被覆盖 新消息直接丢弃 (由 pubsub.Queue.Push
// 的非阻塞语义保证)
type PushSink struct {
	ps *pubsub.PubSub
}

// NewPushSink 创建一个空的 PushSink
func NewPushSink() *PushSink {
	return &PushSink{ps: pubsub.New()}
}

// Subscription 是对一个 PushSink 的单次订阅
type Subscription struct {
	queue pubsub.Queue
	sink  *PushSink
}

// Subscribe 注册一个新的订阅者 backlog 是其积压队列的容量
func (s *PushSink) Subscribe(backlog int) *Subscription {
	return &Subscription{queue: s.ps.Subscribe(backlog), sink: s}
}

// Publish 将一个 Push 值投递给所有当前订阅者
func (s *PushSink) Publish(v resp.Value) {
	s.ps.Publish(v)
}

// NumSubscribers 返回当前订阅者数量
func (s *PushSink) NumSubscribers() int {
	return s.ps.Num()
}

// ID 返回该订阅的唯一标识
func (sub *Subscription) ID() string {
	return sub.queue.ID()
}

// Next 阻塞直到取得下一个 Push 值或者超时 ok == false 表示超时或订阅已关闭
func (sub *Subscription) Next(timeout time.Duration) (resp.Value, bool) {
	data, ok := sub.queue.PopTimeout(timeout)
	if !ok {
		return resp.Value{}, false
	}
	v, ok := data.(resp.Value)
	return v, ok
}

// Close 取消该订阅
func (sub *Subscription) Close() {
	sub.sink.ps.Unsubscribe(sub.queue)
	sub.queue.Close()
}
