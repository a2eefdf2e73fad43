package controllers

import (
	"github.com/gin-gonic/gin"
)

// GETTransaction returns the decoded form of a confirmed or mempool
// transaction. The trailing 1 asks the daemon for verbose output.
func GETTransaction(c *gin.Context) {
	txid, ok := c.Params.Get("txid")
	if !ok || !isBlockHash(txid) {
		clientError(c, "Invalid transaction id")
		return
	}
	upstreamCall(c, "getrawtransaction", []any{txid, 1})
}

func GETDecodeRawTransaction(c *gin.Context) {
	hex, ok := c.Params.Get("hex")
	if !ok || !isHexString(hex) {
		clientError(c, "Invalid transaction hex")
		return
	}
	upstreamCall(c, "decoderawtransaction", []any{hex})
}

// POSTSendRawTransaction broadcasts a signed transaction. The payload
// arrives in query parameters rather than the body, matching the clients
// already in the field.
func POSTSendRawTransaction(c *gin.Context) {
	hexstring := c.Query("hexstring")
	if !isHexString(hexstring) {
		clientError(c, "Invalid hexstring provided")
		return
	}
	allowHighFees := parseFlag(c.DefaultQuery("allowhighfees", "false"))
	upstreamCall(c, "sendrawtransaction", []any{hexstring, allowHighFees})
}
