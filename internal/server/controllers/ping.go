package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GETPing answers locally without touching the daemon, so load balancer
// checks stay cheap even when the chain is stalled.
func GETPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
