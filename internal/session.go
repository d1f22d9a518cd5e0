package internal

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionName   = "storyfront"
	ControllerKey = "controller"
)

// ControllerID returns the id of the caller's controller, issuing a new one on the first visit.
func ControllerID(c *gin.Context) (string, error) {
	session := sessions.Default(c)
	if id, ok := session.Get(ControllerKey).(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	session.Set(ControllerKey, id)
	return id, session.Save()
}
