// Package cryptox encrypts upload streams at rest. Every job gets fresh
// random key material; the cipher is AES-256-CBC with PKCS#7 padding and
// the IV is prepended to the ciphertext, so decryption needs only the
// key, the stream itself, and the padding convention.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	upload_errors "secure-upload/pkg/errors"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize

	// windowSize bounds the plaintext held in memory per read. Must be a
	// multiple of the AES block size.
	windowSize = 64 * 1024
)

// GenerateKeyMaterial returns a fresh random 256-bit key and IV.
func GenerateKeyMaterial() (key, iv []byte, err error) {
	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", upload_errors.ErrCrypto, err)
	}
	iv = make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", upload_errors.ErrCrypto, err)
	}
	return key, iv, nil
}

// EncryptedSize returns the exact ciphertext length (IV included) that
// EncryptStream produces for a plaintext of the given length.
func EncryptedSize(plainSize int64) int64 {
	padded := plainSize + aes.BlockSize - plainSize%aes.BlockSize
	return IVSize + padded
}

// EncryptStream encrypts src into dst, window by window. The IV is
// written first, the final block is PKCS#7 padded. onProgress, if
// non-nil, receives the running plaintext byte count. Returns the total
// ciphertext bytes written.
func EncryptStream(dst io.Writer, src io.Reader, key, iv []byte, onProgress func(read int64)) (int64, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", upload_errors.ErrCrypto, err)
	}
	enc := cipher.NewCBCEncrypter(block, iv)

	if _, err := dst.Write(iv); err != nil {
		return 0, fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
	}
	written := int64(IVSize)

	// Slack for the padding block when a window fills completely.
	buf := make([]byte, windowSize+aes.BlockSize)
	out := make([]byte, windowSize+aes.BlockSize)

	var plain int64
	rem := 0
	for {
		n, rerr := src.Read(buf[rem:windowSize])
		if n > 0 {
			plain += int64(n)
			if onProgress != nil {
				onProgress(plain)
			}
		}
		filled := rem + n

		if rerr == io.EOF {
			padLen := aes.BlockSize - filled%aes.BlockSize
			for i := 0; i < padLen; i++ {
				buf[filled+i] = byte(padLen)
			}
			filled += padLen
			enc.CryptBlocks(out[:filled], buf[:filled])
			if _, err := dst.Write(out[:filled]); err != nil {
				return written, fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
			}
			return written + int64(filled), nil
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: %v", upload_errors.ErrIO, rerr)
		}

		usable := filled - filled%aes.BlockSize
		if usable > 0 {
			enc.CryptBlocks(out[:usable], buf[:usable])
			if _, err := dst.Write(out[:usable]); err != nil {
				return written, fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
			}
			written += int64(usable)
			copy(buf, buf[usable:filled])
		}
		rem = filled - usable
	}
}

// DecryptStream reverses EncryptStream. It is not on the serving path;
// it exists to keep the contract reversible and for verification.
func DecryptStream(dst io.Writer, src io.Reader, key []byte) error {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(src, iv); err != nil {
		return fmt.Errorf("%w: %v", upload_errors.ErrCrypto, err)
	}

	ciphertext, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext length %d not a block multiple", upload_errors.ErrCrypto, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", upload_errors.ErrCrypto, err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = stripPadding(plaintext)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, bytes.NewReader(plaintext)); err != nil {
		return fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
	}
	return nil
}

func stripPadding(b []byte) ([]byte, error) {
	padLen := int(b[len(b)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(b) {
		return nil, fmt.Errorf("%w: bad padding", upload_errors.ErrCrypto)
	}
	for _, p := range b[len(b)-padLen:] {
		if int(p) != padLen {
			return nil, fmt.Errorf("%w: bad padding", upload_errors.ErrCrypto)
		}
	}
	return b[:len(b)-padLen], nil
}
