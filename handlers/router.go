package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter sets up the API routes
func NewRouter(chatHandler *ChatHandler, durable bool) *gin.Engine {
	router := gin.Default()

	// Enable CORS for the browser client
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := router.Group("/api")
	{
		// Conversation routes
		api.POST("/conversations", chatHandler.CreateConversation)
		api.GET("/conversations", chatHandler.ListConversations)
		api.GET("/conversations/:id", chatHandler.GetConversation)
		api.DELETE("/conversations/:id", chatHandler.DeleteConversation)
		api.GET("/conversations/:id/events", chatHandler.StreamEvents)

		// Message routes
		api.POST("/conversations/:id/messages", chatHandler.SendMessage)
		api.GET("/conversations/:id/messages", chatHandler.GetMessages)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "durable": durable})
	})

	return router
}
