package controllers

import (
	"github.com/gin-gonic/gin"
)

func GETInfo(c *gin.Context) {
	upstreamCall(c, "getinfo", nil)
}

func GETConnectionCount(c *gin.Context) {
	upstreamCall(c, "getconnectioncount", nil)
}
