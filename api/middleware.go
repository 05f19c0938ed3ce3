package api

import "github.com/gin-gonic/gin"

const openFeederVersion = "1.0"
const openFeederSchema = "openfeeder/1.0"

// openFeederHeaders stamps every response with the protocol version header
// and opens CORS for the protocol surface.
func openFeederHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-OpenFeeder", openFeederVersion)
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	}
}
