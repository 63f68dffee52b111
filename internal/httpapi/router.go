package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"sfuworker/internal/sfu"
)

// NewEngine builds the debug HTTP surface: liveness, Prometheus
// scraping, swagger UI, and read-only dump endpoints mirroring the
// control-plane's *.dump methods — the same route shape as the
// teacher's v1.NewRouter, with the websocket signalling route dropped
// (signalling is out of this core's scope) and the dump endpoints
// added in its place.
func NewEngine(router *sfu.Router) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	swaggerHandler := ginSwagger.DisablingWrapHandler(swaggerFiles.Handler, "DISABLE_SWAGGER_HTTP_HANDLER")
	engine.GET("/swagger/*any", swaggerHandler)

	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.GET("/router", func(c *gin.Context) {
			c.JSON(http.StatusOK, router.Dump())
		})
		v1.GET("/producers/:id", func(c *gin.Context) {
			p, ok := router.Producer(c.Param("id"))
			if !ok {
				c.Status(http.StatusNotFound)
				return
			}
			c.JSON(http.StatusOK, p.Dump())
		})
		v1.GET("/consumers/:id", func(c *gin.Context) {
			cons, ok := router.Consumer(c.Param("id"))
			if !ok {
				c.Status(http.StatusNotFound)
				return
			}
			c.JSON(http.StatusOK, cons.Dump())
		})
	}

	return engine
}
