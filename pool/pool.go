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

package pool

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/respcore/respcore/conn"
	"github.com/respcore/respcore/internal/rescue"
	"github.com/respcore/respcore/logger"
	"github.com/respcore/respcore/metrics"
)

// DialFunc 拨号一条新连接 默认实现是 conn.Dial 测试可以注入替身以避免真实网络 I/O
type DialFunc func(ctx context.Context, cfg conn.Config) (*conn.Connection, error)

// idleMaintenanceInterval 在没有退避计时器或等待者唤醒时 维护循环的兜底轮询间隔
const idleMaintenanceInterval = time.Minute

type leaseResult struct {
	conn *conn.Connection
	err  error
}

// waiter 是一次排队中的租借请求 resolve/abandon 保证它最多被解决一次
type waiter struct {
	resultCh chan leaseResult
	mu       sync.Mutex
	resolved bool
}

func newWaiter() *waiter {
	return &waiter{resultCh: make(chan leaseResult, 1)}
}

func (w *waiter) resolve(c *conn.Connection, err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolved {
		return false
	}
	w.resolved = true
	w.resultCh <- leaseResult{conn: c, err: err}
	return true
}

// abandon 标记一个等待者已经放弃 (超时或调用方 ctx 取消) 之后任何试图解决它的尝试都会
// 失败并转而把连接归还为 idle 而不是投递到一个已经没有人读取的 channel 上
func (w *waiter) abandon() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolved {
		return false
	}
	w.resolved = true
	return true
}

// Pool 管理一组指向 Config.InitialAddresses 的 Redis 连接 对外提供 Lease/Return/Close
//
// 除了 Lease/Return/Close 本身短暂持有的簿记锁以外 没有任何跨连接的共享可变状态;
// 每次拨号都在独立的 goroutine 里进行 从不在持锁状态下执行阻塞 I/O
type Pool struct {
	cfg  Config
	dial DialFunc

	mu          sync.Mutex
	idle        []*conn.Connection
	waiters     []*waiter
	population  int // 处于 idle/leased/building 状态的连接总数
	building    int
	failureCount int
	nextRetryAt time.Time
	nextAddr    int
	closed      bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New 创建一个连接池 并立即开始维护其最小存活数
func New(cfg Config, dial DialFunc) (*Pool, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dial == nil {
		dial = conn.Dial
	}

	p := &Pool{
		cfg:    cfg,
		dial:   dial,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.maintain()
	p.signal()
	return p, nil
}

// reportGauges 把当前的存活/空闲/等待者数量刷新到 metrics 供 /metrics 端点抓取
func (p *Pool) reportGauges() {
	metrics.SetPoolGauges(p.cfg.Name, p.Population(), p.Idle(), p.Waiting())
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// nextAddress 在 InitialAddresses 上轮询
func (p *Pool) nextAddress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr := p.cfg.InitialAddresses[p.nextAddr%len(p.cfg.InitialAddresses)]
	p.nextAddr++
	return addr
}

// Lease 租借一条连接 若当前有空闲连接立即返回 否则排队等待直到获得连接或 ctx 到期
//
// deadline 完全由 ctx 承载 (符合 "each lease request carries its own deadline
// (overridable per-call)" 的约定): 若 ctx 本身已经携带 deadline (context.WithTimeout/
// WithDeadline) 则直接使用它; 否则套用 Config.DefaultLeaseDeadline (为 0 表示永不超时)
// ctx 因到期而结束的等待会被翻译为 ErrWaiterTimeout 因取消而结束的则原样返回 ctx.Err()
func (p *Pool) Lease(ctx context.Context) (*conn.Connection, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[0]
		p.idle = p.idle[1:]
		p.mu.Unlock()
		metrics.ObserveLeaseWait(p.cfg.Name, time.Since(start))
		p.reportGauges()
		return c, nil
	}

	w := newWaiter()
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()
	p.signal()
	p.reportGauges()

	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok && p.cfg.DefaultLeaseDeadline > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.DefaultLeaseDeadline)
		defer cancel()
	}

	select {
	case res := <-w.resultCh:
		metrics.ObserveLeaseWait(p.cfg.Name, time.Since(start))
		p.reportGauges()
		return res.conn, res.err
	case <-waitCtx.Done():
		p.removeWaiter(w)
		p.reportGauges()
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrWaiterTimeout
		}
		return nil, waitCtx.Err()
	}
}

// removeWaiter 将 w 从等待队列中摘除并标记为已放弃
//
// abandon 可能输给一个并发的 resolve (Return 或 onBuilt 恰好在这之前就把一条连接交给了
// w): 此时 w.resultCh 里已经躺着一条被记入 population 却无人认领的连接 若在这里直接丢弃
// 它既不会被关闭也不会回到 idle 集合 population 却仍然认为它存活 —— 是一处连接泄漏 因此
// abandon 失败时必须把那条连接取出来 交给 recycle 按 Return 同样的规则处理
func (p *Pool) removeWaiter(w *waiter) {
	p.mu.Lock()
	for i, ww := range p.waiters {
		if ww == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if w.abandon() {
		return
	}

	// resolve 在设置 resolved 的同一临界区内完成了发送 resultCh 缓冲为 1 这里不会阻塞
	res := <-w.resultCh
	if res.conn != nil {
		p.recycle(res.conn)
	}
}

// recycle 处理一条仍然存活且已计入 population 的连接接下来该何去何从: 优先移交给下一个
// 等待者 否则在 Elastic 模式超出 Max 时立即关闭 否则放入 idle 集合 池已关闭时直接减少
// population 并关闭连接 Return onBuilt 以及 removeWaiter 在输掉 resolve 竞争时都复用它
func (p *Pool) recycle(c *conn.Connection) {
	p.mu.Lock()
	if p.closed {
		p.population--
		p.mu.Unlock()
		_ = c.Close()
		return
	}

	for len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		if w.resolve(c, nil) {
			return
		}
		p.mu.Lock()
	}

	if p.cfg.elastic() && p.population > p.cfg.Max {
		p.population--
		p.mu.Unlock()
		_ = c.Close()
		return
	}

	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Return 归还一条租借中的连接 已关闭的连接被丢弃; Elastic 模式下超出 Max 的连接即使有
// 等待者也被立即关闭; 否则若有等待者立即移交 其余情况下连接进入 idle 集合
func (p *Pool) Return(c *conn.Connection) {
	if c == nil {
		return
	}
	defer p.reportGauges()

	if c.State() == conn.StateClosed {
		p.mu.Lock()
		p.population--
		p.mu.Unlock()
		p.signal()
		return
	}

	p.mu.Lock()
	if !p.closed && p.cfg.elastic() && p.population > p.cfg.Max {
		p.population--
		p.mu.Unlock()
		_ = c.Close()
		p.signal()
		return
	}
	p.mu.Unlock()

	p.recycle(c)
}

// Close 关闭连接池: 让所有等待者失败 关闭所有空闲连接并聚合关闭过程中的错误
//
// 已经被租借出去尚未归还的连接不会被这里主动关闭 它们在各自 Return 时因池已关闭而被关闭
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	for _, w := range waiters {
		w.resolve(nil, ErrPoolClosed)
	}

	var errs error
	for _, c := range idle {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// Idle 返回当前空闲连接数 主要供 metrics/测试观察
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Waiting 返回当前排队中的等待者数量
func (p *Pool) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// Population 返回当前 idle+leased+building 状态的连接总数
func (p *Pool) Population() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.population
}

// maintain 是唯一负责簿记决策 (该建多少连接 该等待多久) 的 goroutine
// 它从不在持锁状态下执行拨号这类阻塞 I/O: 每次只在锁内计算出"需要建立几条连接"
// 然后释放锁 再把实际的拨号工作派发到独立的 goroutine
func (p *Pool) maintain() {
	defer p.wg.Done()
	defer rescue.HandleCrash()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}

		now := time.Now()
		waitDur := idleMaintenanceInterval
		needed := 0
		if p.nextRetryAt.IsZero() || now.After(p.nextRetryAt) || now.Equal(p.nextRetryAt) {
			needed = p.computeNeededLocked()
			if needed > 0 {
				p.population += needed
				p.building += needed
			}
		} else {
			waitDur = p.nextRetryAt.Sub(now)
		}
		p.mu.Unlock()

		for i := 0; i < needed; i++ {
			p.wg.Add(1)
			go p.attemptBuild()
		}

		select {
		case <-p.wake:
		case <-time.After(waitDur):
		case <-p.stopCh:
			return
		}
	}
}

// computeNeededLocked 计算当前应该新建多少条连接 调用方必须持有 p.mu
func (p *Pool) computeNeededLocked() int {
	var want int
	if p.cfg.elastic() {
		want = len(p.waiters) - p.building
	} else {
		capacity := p.cfg.Max - p.population
		want = len(p.waiters)
		if want > capacity {
			want = capacity
		}
	}

	if floorNeed := p.cfg.Min - p.population; floorNeed > want {
		want = floorNeed
	}

	if !p.cfg.elastic() {
		if capacity := p.cfg.Max - p.population; want > capacity {
			want = capacity
		}
	}
	if want < 0 {
		want = 0
	}
	return want
}

// backoffDelayLocked 计算下一次建连尝试前应当等待的时长 调用方必须持有 p.mu
func (p *Pool) backoffDelayLocked() time.Duration {
	if p.failureCount <= 0 {
		return 0
	}
	delay := float64(p.cfg.RetryInitialDelay) * math.Pow(p.cfg.RetryFactor, float64(p.failureCount-1))
	ceiling := float64(p.cfg.RetryCeiling)
	if delay > ceiling || delay <= 0 {
		delay = ceiling
	}
	return time.Duration(delay)
}

// attemptBuild 拨号一条新连接 并把结果交给 onBuilt 在独立 goroutine 运行 从不持锁阻塞
func (p *Pool) attemptBuild() {
	defer p.wg.Done()
	defer rescue.HandleCrash()

	addr := p.nextAddress()
	connCfg := p.cfg.ConnTemplate
	connCfg.Address = addr

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RetryTimeout)
	defer cancel()

	c, err := p.dial(ctx, connCfg)
	p.onBuilt(c, err)
}

// onBuilt 处理一次建连尝试的结果: 失败则记账并安排退避 成功则移交等待者或归入 idle
func (p *Pool) onBuilt(c *conn.Connection, err error) {
	defer p.reportGauges()

	p.mu.Lock()
	p.building--

	if err != nil {
		p.population--
		p.failureCount++
		p.nextRetryAt = time.Now().Add(p.backoffDelayLocked())
		p.mu.Unlock()
		logger.Warnf("pool: build attempt failed: %v", err)
		metrics.ObserveReconnectBackoff(p.cfg.Name)
		p.signal()
		return
	}

	p.failureCount = 0
	p.nextRetryAt = time.Time{}
	p.mu.Unlock()

	p.recycle(c)
	p.signal()
}
