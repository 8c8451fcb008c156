package router

import (
	"github.com/gin-gonic/gin"
	"gopherdex.com/internal/gateway/handler"
)

func Market(api *gin.RouterGroup, h *handler.Market) {
	markets := api.Group("/markets")
	{
		markets.POST("", h.Create)
		markets.GET("", h.List)
		markets.GET("/:market", h.Get)
		markets.GET("/:market/book", h.Book)
		markets.POST("/:market/orders", h.PlaceOrder)
		markets.DELETE("/:market/orders/:id", h.CancelOrder)
		markets.POST("/:market/match", h.Match)
		markets.POST("/:market/settle", h.Settle)
		markets.GET("/:market/open-orders/:owner", h.OpenOrders)
		markets.DELETE("/:market/open-orders", h.CloseOpenOrders)
		// 管理员
		markets.PUT("/:market/fees", h.SetFees)
		markets.PUT("/:market/pause", h.SetPause)
	}
}

func Balance(api *gin.RouterGroup, h *handler.Balance) {
	balances := api.Group("/balances")
	{
		balances.GET("/:owner", h.List)
		balances.GET("/:owner/:mint", h.Get)
	}
	api.POST("/faucet", h.Credit)
}
