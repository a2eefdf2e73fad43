package server

import (
	"log/slog"
	"net/http"

	"github.com/USA-RedDragon/divi-gateway/internal/server/controllers"
	"github.com/gin-gonic/gin"
)

func applyRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	r.GET("/ping", controllers.GETPing)

	// Chain state
	r.GET("/blockcount", controllers.GETBlockCount)
	r.GET("/block/:hash", controllers.GETBlock)
	r.GET("/blockhash/:height", controllers.GETBlockHash)
	r.GET("/info", controllers.GETInfo)
	r.GET("/getlottery", controllers.GETLottery)

	// Transactions
	r.GET("/tx/:txid", controllers.GETTransaction)
	r.GET("/decode-raw-tx/:hex", controllers.GETDecodeRawTransaction)
	r.POST("/sendrawtransaction", controllers.POSTSendRawTransaction)
	r.GET("/getrawmempool", controllers.GETRawMempool)
	r.GET("/getmempoolinfo", controllers.GETMempoolInfo)

	// Addresses
	r.GET("/getaddressbalance/:address/:isVault", controllers.GETAddressBalance)
	r.GET("/getaddressdeltas/:address/:isVault", controllers.GETAddressDeltas)
	r.GET("/getaddresstxids/:address/:isVault", controllers.GETAddressTxIDs)
	r.GET("/getaddressutxos/:address/:isVault", controllers.GETAddressUTXOs)

	// Network
	r.GET("/connectioncount", controllers.GETConnectionCount)
	r.GET("/peers", controllers.GETPeers)

	r.NoRoute(func(c *gin.Context) {
		slog.Warn("Not Found", "path", c.Request.URL.Path)
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})
}
