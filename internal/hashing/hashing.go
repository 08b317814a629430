// Package hashing computes streaming content digests for the upload
// pipeline. The digest of a stream consumed window by window is
// byte-identical to hashing the whole file at once.
package hashing

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	upload_errors "secure-upload/pkg/errors"
)

// windowSize bounds how much of the stream is held in memory at a time.
const windowSize = 64 * 1024

// Sum consumes r to EOF and returns the hex SHA-1 of its contents.
// declaredSize is the size the client claimed at intake: a stream that
// ends short of it, or runs past it, fails with ErrIO. onProgress, if
// non-nil, is called with the running byte count after each window.
func Sum(r io.Reader, declaredSize int64, onProgress func(read int64)) (string, error) {
	h := sha1.New()
	buf := make([]byte, windowSize)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > declaredSize {
				return "", fmt.Errorf("%w: stream exceeds declared size %d", upload_errors.ErrIO, declaredSize)
			}
			if _, werr := h.Write(buf[:n]); werr != nil {
				return "", fmt.Errorf("%w: %v", upload_errors.ErrIO, werr)
			}
			if onProgress != nil {
				onProgress(total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
		}
	}

	if total < declaredSize {
		return "", fmt.Errorf("%w: stream ended at %d of declared %d bytes", upload_errors.ErrIO, total, declaredSize)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
