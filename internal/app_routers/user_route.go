package approuters

import (
	"github.com/gin-gonic/gin"

	"snipchat/internal/configuration"
	"snipchat/internal/handler"
)

func UserRouters(router *gin.Engine, container *configuration.Container) {
	userRoute := router.Group("/sc/api/users", handler.RequireAuth(container.AuthService))
	{
		userRoute.GET("/search", container.UserHandler.SearchUsers)
		userRoute.PUT("/profile", container.UserHandler.UpdateProfile)
		userRoute.POST("/avatar", container.UserHandler.UploadAvatar)
		userRoute.PUT("/otp", container.UserHandler.SetOtpEnabled)
	}
}
