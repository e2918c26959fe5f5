package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/bucketsync/internal/controlplane/handlers"
	"github.com/openmined/bucketsync/internal/controlplane/middleware"
	"github.com/openmined/bucketsync/internal/version"
)

type RouteConfig struct {
	AuthToken string
	RateLimit string
}

func SetupRoutes(deps *Deps, routeConfig *RouteConfig) (http.Handler, error) {
	r := gin.New()

	rate := routeConfig.RateLimit
	if rate == "" {
		rate = middleware.DefaultRate
	}
	rateLimiter, err := middleware.RateLimiter(rate)
	if err != nil {
		return nil, err
	}

	statusH := handlers.NewStatusHandler(deps.Sessions)
	sessionH := handlers.NewSessionHandler(deps.Sessions)
	syncH := handlers.NewSyncHandler(deps.Syncer, deps.Events)
	historyH := handlers.NewHistoryHandler(deps.History)

	r.Use(middleware.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(rateLimiter)

	r.GET("/", IndexHandler)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(middleware.TokenAuthConfig{Token: routeConfig.AuthToken}))
	{
		v1.GET("/status", statusH.Status)

		v1Sessions := v1.Group("/sessions")
		{
			v1Sessions.GET("", sessionH.List)
			v1Sessions.POST("", sessionH.Start)
			v1Sessions.GET("/:id", sessionH.Get)
			v1Sessions.DELETE("/:id", sessionH.Stop)
		}

		v1.POST("/sync", syncH.SyncOnce)
		v1.GET("/events", syncH.Events)
		v1.GET("/history", historyH.List)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.DetailedWithApp())
}
