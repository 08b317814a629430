package hashing

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	upload_errors "secure-upload/pkg/errors"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.New(rand.NewSource(42)).Read(b)
	require.NoError(t, err)
	return b
}

func TestSumMatchesOneShotDigest(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty window remainder", 100},
		{"exactly one window", 64 * 1024},
		{"window plus one", 64*1024 + 1},
		{"several windows", 3*64*1024 + 517},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := randomBytes(t, tt.size)

			got, err := Sum(bytes.NewReader(data), int64(tt.size), nil)
			require.NoError(t, err)

			oneShot := sha1.Sum(data)
			assert.Equal(t, hex.EncodeToString(oneShot[:]), got)
		})
	}
}

func TestSumShortStream(t *testing.T) {
	data := randomBytes(t, 1000)

	_, err := Sum(bytes.NewReader(data), 2000, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upload_errors.ErrIO))
}

func TestSumStreamLongerThanDeclared(t *testing.T) {
	data := randomBytes(t, 1000)

	_, err := Sum(bytes.NewReader(data), 500, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upload_errors.ErrIO))
}

func TestSumReportsMonotonicProgress(t *testing.T) {
	data := randomBytes(t, 200*1024)

	var reports []int64
	_, err := Sum(bytes.NewReader(data), int64(len(data)), func(read int64) {
		reports = append(reports, read)
	})
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i], reports[i-1])
	}
	assert.Equal(t, int64(len(data)), reports[len(reports)-1])
}
