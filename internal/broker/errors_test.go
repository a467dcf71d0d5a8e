package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Requeue(t *testing.T) {
	assert.True(t, (&Error{Kind: KindTransient}).Requeue())
	assert.False(t, (&Error{Kind: KindMalformed}).Requeue())
	assert.False(t, (&Error{Kind: KindInvalidPayload}).Requeue())
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("underlying")
	err := newErr("op", KindTransient, inner)
	assert.ErrorIs(t, err, inner)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "malformed", KindMalformed.String())
	assert.Equal(t, "invalid_payload", KindInvalidPayload.String())
}
