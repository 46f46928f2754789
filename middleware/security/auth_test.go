package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	toolsec "PPRelay/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newEngine(opts *Options) (*gin.Engine, *toolsec.Resolver) {
	gin.SetMode(gin.TestMode)
	res := toolsec.NewResolver(toolsec.DefaultOptions([]byte("secret")))
	r := gin.New()
	r.GET("/me", Middleware(res, opts), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r, res
}

func TestMiddleware_AcceptsBearer(t *testing.T) {
	req := require.New(t)
	r, res := newEngine(nil)
	tok, err := res.Issue("u1")
	req.NoError(err)

	// Given: a valid bearer token
	w := httptest.NewRecorder()
	rq := httptest.NewRequest(http.MethodGet, "/me", nil)
	rq.Header.Set("Authorization", "Bearer "+tok)

	// When
	r.ServeHTTP(w, rq)

	// Then: the user id reaches the handler
	req.Equal(http.StatusOK, w.Code)
	req.Equal("u1", w.Body.String())
}

func TestMiddleware_CustomHeaderAndQuery(t *testing.T) {
	req := require.New(t)
	r, res := newEngine(&Options{HeaderToken: "X-Auth-Token", AllowQueryToken: true})
	tok, _ := res.Issue("u2")

	w := httptest.NewRecorder()
	rq := httptest.NewRequest(http.MethodGet, "/me", nil)
	rq.Header.Set("X-Auth-Token", tok)
	r.ServeHTTP(w, rq)
	req.Equal("u2", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil))
	req.Equal("u2", w.Body.String())
}

func TestMiddleware_Rejects(t *testing.T) {
	req := require.New(t)
	r, _ := newEngine(nil)

	for _, hdr := range []string{"", "Bearer junk", "Basic abc"} {
		w := httptest.NewRecorder()
		rq := httptest.NewRequest(http.MethodGet, "/me", nil)
		if hdr != "" {
			rq.Header.Set("Authorization", hdr)
		}
		r.ServeHTTP(w, rq)
		req.Equal(http.StatusUnauthorized, w.Code, "header %q", hdr)
		req.Contains(w.Body.String(), `"code":1401`)
	}

	// query token is off by default
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=whatever", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
}
