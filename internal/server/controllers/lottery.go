package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// GETLottery returns the lottery winners for a block. Without a
// blockheight query the daemon reports the current lottery round.
func GETLottery(c *gin.Context) {
	params := []any{}
	if raw, ok := c.GetQuery("blockheight"); ok {
		height, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || height < 0 {
			clientError(c, "Invalid block height")
			return
		}
		params = append(params, height)
	}
	upstreamCall(c, "getlotteryblockwinners", params)
}
