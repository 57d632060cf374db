// Copyright 2025 Transit Beacon Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transitbeacon/transitbeacon/pkg/serrors"
)

func TestWithCtxPreservesIdentity(t *testing.T) {
	sentinel := serrors.New("something went wrong")
	err := serrors.WithCtx(sentinel, "key", "value")

	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "something went wrong")
	assert.Contains(t, err.Error(), `key="value"`)
}

func TestWrapStrUnwrapsToCause(t *testing.T) {
	cause := errors.New("root cause")
	err := serrors.WrapStr("operation failed", cause, "attempt", 3)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "operation failed")
	assert.Contains(t, err.Error(), "root cause")
}

func TestWrapMatchesBothErrors(t *testing.T) {
	sentinel := serrors.New("sentinel")
	cause := errors.New("cause")
	err := serrors.Wrap(sentinel, cause, "key", 1)

	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, cause)
}

func TestNewWithContext(t *testing.T) {
	err := serrors.New("failure", "count", 2)
	assert.Contains(t, err.Error(), `count="2"`)
	assert.ErrorIs(t, err, err)
}
