package controllers

import (
	"github.com/gin-gonic/gin"
)

// addressCall shapes the shared argument list of the getaddress* family:
// an addresses object plus the vault flag.
func addressCall(c *gin.Context, method string) {
	address, ok := c.Params.Get("address")
	if !ok || address == "" {
		clientError(c, "Invalid address")
		return
	}
	isVault, _ := c.Params.Get("isVault")
	upstreamCall(c, method, []any{
		map[string]any{"addresses": []string{address}},
		parseFlag(isVault),
	})
}

func GETAddressBalance(c *gin.Context) {
	addressCall(c, "getaddressbalance")
}

func GETAddressDeltas(c *gin.Context) {
	addressCall(c, "getaddressdeltas")
}

func GETAddressTxIDs(c *gin.Context) {
	addressCall(c, "getaddresstxids")
}

func GETAddressUTXOs(c *gin.Context) {
	addressCall(c, "getaddressutxos")
}
