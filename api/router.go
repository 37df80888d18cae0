package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-agent/logging"
)

// CORS allows any origin and answers preflight requests directly
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+logging.RequestIDHeader)
		header.Set("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NewRouter builds the gin engine serving the agent API
func NewRouter(s Spooler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(
		logging.RequestID(),
		logging.GinMiddleware(logger),
		logging.Recovery(logger),
		CORS(),
	)

	h := NewHandler(s)
	engine.GET("/ping", h.Ping)
	engine.GET("/printers", h.ListPrinters)

	printGroup := engine.Group("/print")
	printGroup.POST("/ticket", h.PrintTicket)
	printGroup.POST("/barcode", h.PrintBarcode)
	printGroup.POST("/text", h.PrintText)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	})

	return engine
}
