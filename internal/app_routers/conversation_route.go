package approuters

import (
	"github.com/gin-gonic/gin"

	"snipchat/internal/configuration"
	"snipchat/internal/handler"
)

func ConversationRouters(router *gin.Engine, container *configuration.Container) {
	convRoute := router.Group("/sc/api/conversations", handler.RequireAuth(container.AuthService))
	{
		convRoute.GET("", container.ConversationHandler.ListConversations)
		convRoute.POST("", container.ConversationHandler.CreateConversation)
		convRoute.DELETE("/:conversationId", container.ConversationHandler.DeleteConversation)
		convRoute.GET("/:conversationId/messages", container.ConversationHandler.GetMessages)
	}
}
