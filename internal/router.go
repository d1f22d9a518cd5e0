package internal

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func BuildRouter(app *App) *gin.Engine {
	router := gin.New()

	store := cookie.NewStore([]byte(app.Config.CookieSecret))

	router.SetFuncMap(TemplateFuncs)
	router.LoadHTMLGlob(app.Config.TemplateGLOB)
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(sessions.Sessions(SessionName, store))

	router.GET("/healthz", app.Health)
	router.GET("/", app.Home)
	router.GET("/ws", app.Stream)

	router.POST("/image", app.SelectImage)
	router.POST("/image/reset", app.ResetImage)
	router.POST("/generate", app.Generate)
	router.POST("/regenerate", app.Regenerate)
	router.POST("/narrate", app.Narrate)
	router.POST("/copy", app.Copy)
	router.POST("/copy/done", app.CopyDone)
	router.POST("/copy/failed", app.CopyFailed)

	download := router.Group("/download")
	download.GET("/story", app.DownloadStory)
	download.GET("/audio", app.DownloadAudio)

	return router
}
