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

// Package metrics 为 conn/pool 提供 Prometheus instrumentation: 池的存活/空闲/等待者数量
// 租借等待时长 命令成功/失败计数 以及重连退避计数
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/respcore/respcore/common"
	"github.com/respcore/respcore/internal/labels"
)

var (
	poolPopulation = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "pool_population",
			Help:      "Connections currently idle, leased, or being built",
		},
		[]string{"pool"},
	)

	poolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "pool_idle",
			Help:      "Connections currently idle in the pool",
		},
		[]string{"pool"},
	)

	poolWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "pool_waiting",
			Help:      "Lease requests currently queued",
		},
		[]string{"pool"},
	)

	leaseWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: common.App,
			Name:      "lease_wait_seconds",
			Help:      "Time spent waiting for Lease to return a connection",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	reconnectBackoffTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "reconnect_backoff_total",
			Help:      "Dial attempts that failed and entered backoff",
		},
		[]string{"pool"},
	)

	commandTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "command_total",
			Help:      "Commands sent, labeled by command name and outcome",
		},
		[]string{"command", "result"},
	)
)

// SetPoolGauges 刷新一个命名池的存活/空闲/等待者三个 gauge
func SetPoolGauges(pool string, population, idle, waiting int) {
	poolPopulation.WithLabelValues(pool).Set(float64(population))
	poolIdle.WithLabelValues(pool).Set(float64(idle))
	poolWaiting.WithLabelValues(pool).Set(float64(waiting))
}

// ObserveLeaseWait 记录一次 Lease 调用等待连接所花费的时间
func ObserveLeaseWait(pool string, waited time.Duration) {
	leaseWaitSeconds.WithLabelValues(pool).Observe(waited.Seconds())
}

// ObserveReconnectBackoff 记录一次建连失败并进入退避
func ObserveReconnectBackoff(pool string) {
	reconnectBackoffTotal.WithLabelValues(pool).Inc()
}

// commandCounters 把 (command, result) 标签组合解析为具体 Counter 的结果缓存起来
//
// 标签组合的基数在长期运行的连接上趋于稳定 (命令名来自一个有限的调用方集合) 用
// internal/labels.Labels.Hash() 做键 避免在高频的命令路径上反复执行
// CounterVec.WithLabelValues 内部的字符串拼接与 map 查找
type commandCounters struct {
	mu    sync.Mutex
	cache map[uint64]prometheus.Counter
}

var commandCache = commandCounters{cache: make(map[uint64]prometheus.Counter)}

// ObserveCommand 记录一次命令发送的结果 result 通常是 "success" 或 "error"
func ObserveCommand(command, result string) {
	lbs := labels.Labels{{Name: "command", Value: command}, {Name: "result", Value: result}}
	key := lbs.Hash()

	commandCache.mu.Lock()
	counter, ok := commandCache.cache[key]
	if !ok {
		counter = commandTotal.WithLabelValues(command, result)
		commandCache.cache[key] = counter
	}
	commandCache.mu.Unlock()

	counter.Inc()
}
