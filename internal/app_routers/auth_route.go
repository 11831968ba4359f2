package approuters

import (
	"github.com/gin-gonic/gin"

	"snipchat/internal/configuration"
	"snipchat/internal/handler"
)

func AuthRouters(router *gin.Engine, container *configuration.Container) {
	authRoute := router.Group("/sc/api/auth")
	{
		authRoute.POST("/sign-up", container.AuthHandler.SignUp)
		authRoute.POST("/sign-in", container.AuthHandler.SignIn)
		authRoute.POST("/verify-otp", container.AuthHandler.VerifyOtp)
		authRoute.POST("/refresh", container.AuthHandler.Refresh)
		authRoute.GET("/me", container.AuthHandler.Me)

		authRoute.POST("/sign-out",
			handler.RequireAuth(container.AuthService), container.AuthHandler.SignOut)
	}
}
