package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceUnmarshal(t *testing.T) {
	var in ProductInput
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Mug","price":"9.99"}`), &in))
	assert.Equal(t, Price("9.99"), in.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"title":"Mug","price":19.5}`), &in))
	assert.Equal(t, Price("19.5"), in.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"title":"Mug","price":null}`), &in))
	assert.True(t, in.Price.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`{"price":true}`), &in))
}

func TestPriceFloat(t *testing.T) {
	f, err := Price(" 19.99 ").Float()
	require.NoError(t, err)
	assert.InDelta(t, 19.99, f, 1e-9)

	_, err = Price("abc").Float()
	assert.Error(t, err)

	_, err = Price("NaN").Float()
	assert.Error(t, err)
}

func TestSamePrice(t *testing.T) {
	assert.True(t, SamePrice(19.99, 19.99))
	assert.True(t, SamePrice(19.999, 20))
	assert.False(t, SamePrice(19.99, 19.98))
	assert.Equal(t, 10.01, RoundCents(10.005000001))
}
