package controllers

import (
	"github.com/gin-gonic/gin"
)

func GETRawMempool(c *gin.Context) {
	upstreamCall(c, "getrawmempool", nil)
}

func GETMempoolInfo(c *gin.Context) {
	upstreamCall(c, "getmempoolinfo", nil)
}
