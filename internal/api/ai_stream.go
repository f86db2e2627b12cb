package api

import (
	"net/http"
	"strings"

	"jns23lab_go_backend/internal/auth"
	apperrors "jns23lab_go_backend/internal/errors"
	"jns23lab_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/iterator"
)

// chatStreamHandler serves the assistant reply as Server-Sent Events. Quota
// and validation errors are reported as plain JSON before the stream starts;
// once streaming, failures are surfaced as an "error" event since the status
// line is already written.
func chatStreamHandler(gateway *services.GatewayService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body chatRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user := auth.CurrentUser(c)
		iter, finish, err := gateway.ChatStream(c.Request.Context(), user, body.Message)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.WriteHeader(http.StatusOK)
		c.Writer.Flush()

		var fullReply strings.Builder
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				c.SSEvent("error", gin.H{"message": "AI service temporarily unavailable. Please try again later."})
				c.Writer.Flush()
				return
			}
			delta := services.ResponseChunkText(resp)
			if delta == "" {
				continue
			}
			fullReply.WriteString(delta)
			c.SSEvent("message", gin.H{"delta": delta})
			c.Writer.Flush()
		}

		remainingToday := finish(c.Request.Context(), fullReply.String())
		c.SSEvent("done", gin.H{"remaining_today": remainingToday})
		c.Writer.Flush()
	}
}
