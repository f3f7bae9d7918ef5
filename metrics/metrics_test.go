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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/respcore/respcore/internal/labels"
)

func TestSetPoolGauges(t *testing.T) {
	SetPoolGauges("main", 3, 2, 1)
	assert.Equal(t, float64(3), testutil.ToFloat64(poolPopulation.WithLabelValues("main")))
	assert.Equal(t, float64(2), testutil.ToFloat64(poolIdle.WithLabelValues("main")))
	assert.Equal(t, float64(1), testutil.ToFloat64(poolWaiting.WithLabelValues("main")))
}

func TestObserveLeaseWaitRecordsIntoHistogram(t *testing.T) {
	before := testutil.CollectAndCount(leaseWaitSeconds)
	ObserveLeaseWait("histo", 10*time.Millisecond)
	after := testutil.CollectAndCount(leaseWaitSeconds)
	assert.GreaterOrEqual(t, after, before)
}

func TestObserveReconnectBackoffIncrements(t *testing.T) {
	before := testutil.ToFloat64(reconnectBackoffTotal.WithLabelValues("backoff-pool"))
	ObserveReconnectBackoff("backoff-pool")
	after := testutil.ToFloat64(reconnectBackoffTotal.WithLabelValues("backoff-pool"))
	assert.Equal(t, before+1, after)
}

func TestObserveCommandIncrementsAndCachesCounter(t *testing.T) {
	before := testutil.ToFloat64(commandTotal.WithLabelValues("GET", "success"))
	ObserveCommand("GET", "success")
	ObserveCommand("GET", "success")
	after := testutil.ToFloat64(commandTotal.WithLabelValues("GET", "success"))
	assert.Equal(t, before+2, after)

	key := labels.Labels{{Name: "command", Value: "GET"}, {Name: "result", Value: "success"}}.Hash()
	commandCache.mu.Lock()
	_, cached := commandCache.cache[key]
	commandCache.mu.Unlock()
	assert.True(t, cached)
}
