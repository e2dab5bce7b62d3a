package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_PackRoundTrip(t *testing.T) {
	s, err := NewAuditStore(nil)
	require.NoError(t, err)

	small := []byte(`{"status":"final"}`)
	plain, compressed, algo := s.pack(small)
	assert.Equal(t, CompressionNone, algo)
	assert.Nil(t, compressed)
	assert.JSONEq(t, string(small), string(plain))

	large := []byte(`{"notes":"` + strings.Repeat("x", DefaultCompressThreshold+1) + `"}`)
	plain, compressed, algo = s.pack(large)
	assert.Equal(t, CompressionZstd, algo)
	assert.Nil(t, plain)
	assert.Less(t, len(compressed), len(large))

	restored, err := s.unpack(plain, compressed, algo)
	require.NoError(t, err)
	assert.Equal(t, large, []byte(restored))
}
