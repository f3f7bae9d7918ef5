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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNull(t *testing.T) {
	assert.True(t, Null().IsNull())
	assert.True(t, NullBulkString().IsNull())
	assert.True(t, Array(nil).IsNull())
	assert.False(t, BulkStringFrom("").IsNull())
	assert.False(t, Array([]Value{}).IsNull())
	assert.False(t, Integer(0).IsNull())
	assert.False(t, SimpleString("").IsNull())
}

func TestBulkStringVsNullBulk(t *testing.T) {
	empty := BulkStringFrom("")
	null := NullBulkString()

	assert.False(t, empty.Equal(null))
	assert.NotNil(t, empty.Bulk)
	assert.Nil(t, null.Bulk)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Integer(5).Equal(Integer(5)))
	assert.False(t, Integer(5).Equal(Integer(6)))
	assert.False(t, Integer(5).Equal(SimpleString("5")))

	a := Array([]Value{Integer(1), BulkStringFrom("x")})
	b := Array([]Value{Integer(1), BulkStringFrom("x")})
	c := Array([]Value{Integer(1), BulkStringFrom("y")})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "BulkString", KindBulkString.String())
	assert.Equal(t, "Push", KindPush.String())
	assert.Contains(t, Kind(999).String(), "Kind(999)")
}

func TestCommandValueShape(t *testing.T) {
	cmd := NewCommand("GET", "key1")
	v := cmd.Value()
	assert.Equal(t, KindArray, v.Kind)
	assert.Len(t, v.Array, 2)
	assert.True(t, v.Array[0].Equal(BulkStringFrom("GET")))
	assert.True(t, v.Array[1].Equal(BulkStringFrom("key1")))
}
