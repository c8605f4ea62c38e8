package kafka

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := fmt.Errorf("handling: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.NoError(t, Permanent(nil))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		ID string `json:"id"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"id":"p1"}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{{Key: "k", Value: map[string]int{"n": 1}}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("k"), msgs[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Value))

	_, err = encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}
