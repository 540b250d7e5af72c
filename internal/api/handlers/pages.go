package handlers

import (
	"net/http"

	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/middlewares"

	"github.com/gin-gonic/gin"
)

// IndexPage serves the login page
func IndexPage(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{
			"title": "Login",
		})
	}
}

// MessagesPage serves the message board. It sits behind WebAuth.
func MessagesPage(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := middlewares.CurrentIdentity(c)
		c.HTML(http.StatusOK, "msgs.html", gin.H{
			"title":    "Messages",
			"username": id.Subject,
			"timezone": id.Timezone,
		})
	}
}
