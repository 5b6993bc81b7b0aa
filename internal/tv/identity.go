package tv

import (
	"context"
	_ "crypto/sha256" // registers SHA-256 for go-digest
	_ "crypto/sha512" // registers SHA-384/512 for go-digest
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// DefaultHashAlgorithm is used when no algorithm is configured.
const DefaultHashAlgorithm = string(digest.SHA256)

// Identity is the content identity of a file: its digest plus basic stat.
type Identity struct {
	Digest    string // hex encoded
	Algorithm string
	Size      int64
	ModTime   time.Time
}

// ParseAlgorithm maps a configured algorithm name onto a digest algorithm.
// An empty name selects SHA-256.
func ParseAlgorithm(name string) (digest.Algorithm, error) {
	if name == "" {
		return digest.Canonical, nil
	}
	alg := digest.Algorithm(strings.ToLower(name))
	if !alg.Available() {
		return "", preconditionf("unsupported hash algorithm %q", name)
	}
	return alg, nil
}

// NewDigester returns a streaming digester for the named algorithm.
func NewDigester(algorithm string) (digest.Digester, error) {
	alg, err := ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	return alg.Digester(), nil
}

// DigestReader consumes r and returns its hex digest and length.
// The read is abandoned as soon as ctx is done.
func DigestReader(ctx context.Context, r io.Reader, algorithm string) (string, int64, error) {
	d, err := NewDigester(algorithm)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(d.Hash(), ContextReader(ctx, r))
	if err != nil {
		return "", n, fmt.Errorf("reading content: %w", err)
	}
	return d.Digest().Encoded(), n, nil
}

// ContextReader wraps r so reads fail once ctx is done.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// contentKey names a blob in a vault: <algorithm>/<hex>, with a suffix for
// encrypted payloads so plaintext and ciphertext never share a key.
func contentKey(algorithm, hex string, encrypted bool) string {
	if algorithm == "" {
		algorithm = DefaultHashAlgorithm
	}
	key := algorithm + "/" + hex
	if encrypted {
		key += ".age"
	}
	return key
}

// teeDigest feeds everything read from r into d.
func teeDigest(r io.Reader, d digest.Digester) io.Reader {
	return io.TeeReader(r, d.Hash())
}

// verifyingReader digests everything read through it and turns io.EOF into an
// error when the digest does not match. Writers that commit only on a clean
// EOF therefore never commit corrupt content.
type verifyingReader struct {
	r    io.Reader
	d    digest.Digester
	want string
	path string
}

func newVerifyingReader(r io.Reader, algorithm, want, path string) (*verifyingReader, error) {
	d, err := NewDigester(algorithm)
	if err != nil {
		return nil, err
	}
	return &verifyingReader{r: r, d: d, want: want, path: path}, nil
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		v.d.Hash().Write(p[:n])
	}
	if err == io.EOF {
		if got := v.d.Digest().Encoded(); got != v.want {
			return n, fmt.Errorf("digest mismatch for %s: got %s, want %s", v.path, got, v.want)
		}
	}
	return n, err
}
