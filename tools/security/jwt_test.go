package security

import (
	"errors"
	"testing"
	"time"

	"PPRelay/tools/errs"

	"github.com/stretchr/testify/require"
)

func TestResolver_RoundTrip(t *testing.T) {
	req := require.New(t)
	r := NewResolver(DefaultOptions([]byte("secret")))

	tok, err := r.Issue("64b7f0c2a1b2c3d4e5f60718")
	req.NoError(err)

	uid, err := r.Resolve(tok)
	req.NoError(err)
	req.Equal("64b7f0c2a1b2c3d4e5f60718", uid)
}

func TestResolver_RejectsForeignSecret(t *testing.T) {
	req := require.New(t)
	issuer := NewResolver(DefaultOptions([]byte("other")))
	r := NewResolver(DefaultOptions([]byte("secret")))

	tok, err := issuer.Issue("u1")
	req.NoError(err)

	_, err = r.Resolve(tok)
	req.True(errors.Is(err, errs.ErrUnauthorized))
}

func TestResolver_RejectsExpired(t *testing.T) {
	req := require.New(t)
	opts := DefaultOptions([]byte("secret"))
	opts.TTL = time.Millisecond
	tok, _, err := Generate(opts, "u1")
	req.NoError(err)
	time.Sleep(1100 * time.Millisecond)

	_, err = NewResolver(opts).Resolve(tok)
	req.True(errors.Is(err, errs.ErrUnauthorized))
}

func TestResolver_MissingToken(t *testing.T) {
	_, err := NewResolver(DefaultOptions([]byte("secret"))).Resolve("  ")
	require.True(t, errors.Is(err, errs.ErrUnauthorized))
}

func TestBearerToken(t *testing.T) {
	req := require.New(t)
	req.Equal("abc", BearerToken("Bearer abc"))
	req.Equal("abc", BearerToken("bearer   abc "))
	req.Equal("", BearerToken("Basic abc"))
	req.Equal("", BearerToken("Bearer"))
}
