package user

import (
	"net/http"

	"PPRelay/global"
	midsec "PPRelay/middleware/security"
	usermodel "PPRelay/module/user/model"
	usersvc "PPRelay/module/user/service"
	"PPRelay/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// View 对外返回的用户信息
type View struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Handler struct {
	dir usersvc.Directory
}

func NewHandler(dir usersvc.Directory) *Handler {
	return &Handler{dir: dir}
}

// List GET /api/messages/users 除自己以外的用户
func (h *Handler) List(c *gin.Context) {
	users, err := h.dir.ListExcept(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		if _, ok := errs.As(err); !ok {
			err = errs.ErrStorage.Cause(err, "list users")
		}
		c.AbortWithStatusJSON(errs.HTTPStatus(err), global.Fail(err))
		return
	}
	c.JSON(http.StatusOK, global.Success(lo.Map(users, func(u *usermodel.User, _ int) View {
		return View{ID: u.GetUserID(), Username: u.Username, Email: u.Email}
	})))
}
