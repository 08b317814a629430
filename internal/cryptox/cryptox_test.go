package cryptox

import (
	"bytes"
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
	_, err := rand.New(rand.NewSource(7)).Read(b)
	require.NoError(t, err)
	return b
}

func TestGenerateKeyMaterial(t *testing.T) {
	key, iv, err := GenerateKeyMaterial()
	require.NoError(t, err)
	assert.Len(t, key, KeySize)
	assert.Len(t, iv, IVSize)

	key2, iv2, err := GenerateKeyMaterial()
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
	assert.NotEqual(t, iv, iv2)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"single byte", 1},
		{"below one block", 15},
		{"exactly one block", 16},
		{"block aligned", 4096},
		{"one window", 64 * 1024},
		{"window plus tail", 64*1024 + 37},
		{"several windows", 3*64*1024 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext := randomBytes(t, tt.size)
			key, iv, err := GenerateKeyMaterial()
			require.NoError(t, err)

			var ciphertext bytes.Buffer
			written, err := EncryptStream(&ciphertext, bytes.NewReader(plaintext), key, iv, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(ciphertext.Len()), written)
			assert.Equal(t, EncryptedSize(int64(tt.size)), written)

			var decrypted bytes.Buffer
			require.NoError(t, DecryptStream(&decrypted, &ciphertext, key))
			assert.Equal(t, plaintext, decrypted.Bytes())
		})
	}
}

func TestEncryptStreamPrependsIV(t *testing.T) {
	plaintext := randomBytes(t, 100)
	key, iv, err := GenerateKeyMaterial()
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	_, err = EncryptStream(&ciphertext, bytes.NewReader(plaintext), key, iv, nil)
	require.NoError(t, err)

	assert.Equal(t, iv, ciphertext.Bytes()[:IVSize])
	assert.NotContains(t, string(ciphertext.Bytes()), string(plaintext))
}

func TestEncryptStreamReportsPlaintextProgress(t *testing.T) {
	plaintext := randomBytes(t, 150*1024)
	key, iv, err := GenerateKeyMaterial()
	require.NoError(t, err)

	var reports []int64
	var ciphertext bytes.Buffer
	_, err = EncryptStream(&ciphertext, bytes.NewReader(plaintext), key, iv, func(read int64) {
		reports = append(reports, read)
	})
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i], reports[i-1])
	}
	assert.Equal(t, int64(len(plaintext)), reports[len(reports)-1])
}

func TestDecryptStreamWrongKey(t *testing.T) {
	plaintext := randomBytes(t, 256)
	key, iv, err := GenerateKeyMaterial()
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	_, err = EncryptStream(&ciphertext, bytes.NewReader(plaintext), key, iv, nil)
	require.NoError(t, err)

	wrongKey, _, err := GenerateKeyMaterial()
	require.NoError(t, err)

	var decrypted bytes.Buffer
	err = DecryptStream(&decrypted, &ciphertext, wrongKey)
	if err == nil {
		// CBC has no integrity check, so a wrong key may still strip
		// what looks like valid padding. The result must differ.
		assert.NotEqual(t, plaintext, decrypted.Bytes())
		return
	}
	assert.True(t, errors.Is(err, upload_errors.ErrCrypto))
}

func TestDecryptStreamTruncatedCiphertext(t *testing.T) {
	key, _, err := GenerateKeyMaterial()
	require.NoError(t, err)

	var decrypted bytes.Buffer
	err = DecryptStream(&decrypted, bytes.NewReader([]byte{1, 2, 3}), key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upload_errors.ErrCrypto))
}

func TestEncryptedSize(t *testing.T) {
	assert.Equal(t, int64(IVSize+16), EncryptedSize(1))
	assert.Equal(t, int64(IVSize+16), EncryptedSize(15))
	assert.Equal(t, int64(IVSize+32), EncryptedSize(16))
	assert.Equal(t, int64(IVSize+5*1024*1024+16), EncryptedSize(5*1024*1024))
}
