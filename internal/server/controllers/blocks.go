package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

func GETBlockCount(c *gin.Context) {
	upstreamCall(c, "getblockcount", nil)
}

// GETBlock returns the verbose (decoded) form of a block.
func GETBlock(c *gin.Context) {
	hash, ok := c.Params.Get("hash")
	if !ok || !isBlockHash(hash) {
		clientError(c, "Invalid block hash")
		return
	}
	upstreamCall(c, "getblock", []any{hash, true})
}

func GETBlockHash(c *gin.Context) {
	param, ok := c.Params.Get("height")
	if !ok {
		clientError(c, "Invalid block height")
		return
	}
	height, err := strconv.ParseInt(param, 10, 64)
	if err != nil || height < 0 {
		clientError(c, "Invalid block height")
		return
	}
	upstreamCall(c, "getblockhash", []any{height})
}
