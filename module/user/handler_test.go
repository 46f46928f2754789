package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPRelay/global"
	midsec "PPRelay/middleware/security"
	usermodel "PPRelay/module/user/model"
	usersvc "PPRelay/module/user/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func serveList(dir usersvc.Directory, caller string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/messages/users", func(c *gin.Context) {
		c.Set(midsec.PPCtxUserIDKey, caller)
	}, NewHandler(dir).List)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages/users", nil))
	return w
}

func TestHandler_ListExcludesCaller(t *testing.T) {
	req := require.New(t)
	alice := &usermodel.User{Username: "alice", Email: "a@x.io"}
	bob := &usermodel.User{Username: "bob", Email: "b@x.io"}
	carol := &usermodel.User{Username: "carol", Email: "c@x.io"}
	dir := usersvc.NewMemoryDirectory(carol, alice, bob)

	w := serveList(dir, bob.GetUserID())

	req.Equal(http.StatusOK, w.Code)
	var env struct {
		Data []View `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &env))
	req.Equal([]View{
		{ID: alice.GetUserID(), Username: "alice", Email: "a@x.io"},
		{ID: carol.GetUserID(), Username: "carol", Email: "c@x.io"},
	}, env.Data)
}

func TestHandler_ListStorageError(t *testing.T) {
	req := require.New(t)
	dir := usersvc.NewMemoryDirectory()
	dir.Err = errors.New("connection reset")

	w := serveList(dir, "u1")

	req.Equal(http.StatusInternalServerError, w.Code)
	var m global.Msg
	req.NoError(json.Unmarshal(w.Body.Bytes(), &m))
	req.Equal(1500, m.Code)
	req.NotContains(m.Msg, "connection reset")
}
