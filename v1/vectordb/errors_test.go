package vectordb

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpErrorWrapsSentinel(t *testing.T) {
	err := WrapOp("vectorize", "insert", BatchSubject(3), &ArityError{Vectors: 3, IDs: 2, Payloads: 3})

	assert.True(t, IsArityMismatchError(err))
	assert.EqualError(t, err, "vectorize: insert (batch of 3): vectordb: arity mismatch: 3 vectors, 2 ids, 3 payloads")

	var op *OpError
	require.True(t, errors.As(err, &op))
	assert.Equal(t, "insert", op.Op)
}

func TestWrapOpNil(t *testing.T) {
	assert.NoError(t, WrapOp("memory", "get", "", nil))
}

func TestNotImplemented(t *testing.T) {
	err := NotImplemented("vectorize", "update")
	assert.True(t, IsNotImplementedError(err))
	assert.False(t, IsNotFoundError(err))
	assert.EqualError(t, err, "vectorize: update: vectordb: not implemented")
}

func TestRemoteErrorMatchesSentinelAndCause(t *testing.T) {
	err := WrapOp("vectorize", "query", "", &RemoteError{Err: io.ErrUnexpectedEOF})

	assert.True(t, IsRemoteFailureError(err))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestRemoteErrorMessage(t *testing.T) {
	err := &RemoteError{
		StatusCode: 400,
		Messages:   []RemoteMessage{{Code: 40006, Message: "invalid vector"}},
		Body:       `{"success":false}`,
	}
	assert.Equal(t, "vectordb: remote failure: status 400: [40006] invalid vector", err.Error())

	bodyOnly := &RemoteError{StatusCode: 502, Body: "bad gateway"}
	assert.Equal(t, "vectordb: remote failure: status 502: bad gateway", bodyOnly.Error())
}

func TestDimensionErrorMessage(t *testing.T) {
	assert.Equal(t, "vectordb: dimension mismatch: expected 2, got 3",
		(&DimensionError{Expected: 2, Actual: 3, Index: -1}).Error())
	assert.Equal(t, "vectordb: dimension mismatch: vector 4: expected 2, got 3",
		(&DimensionError{Expected: 2, Actual: 3, Index: 4}).Error())
}

func TestMalformed(t *testing.T) {
	err := Malformed("match %d has no id", 2)
	assert.True(t, IsMalformedResponseError(err))
	assert.EqualError(t, err, "vectordb: malformed response: match 2 has no id")
}
