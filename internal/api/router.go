package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the gin engine with every route of the service.
func NewRouter(handlers *Handlers, environment string) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/about", handlers.About)
		v1.GET("/contracts", handlers.ListContracts)
		v1.GET("/contracts/:address", handlers.GetContractsByAddress)
		v1.POST("/data-decoder", handlers.DecodeData)
	}

	return router
}
