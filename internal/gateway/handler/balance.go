package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gopherdex.com/pkg/common"
)

type Balance struct {
	Svc    Balances
	Faucet bool
}

type faucetReq struct {
	Account string `json:"account" binding:"required"`
	Mint    string `json:"mint" binding:"required"`
	Amount  uint64 `json:"amount" binding:"required"`
}

func (h *Balance) Get(c *gin.Context) {
	owner, ok := pathKey(c, "owner")
	if !ok {
		return
	}
	mint, ok := pathKey(c, "mint")
	if !ok {
		return
	}
	b, err := h.Svc.GetBalance(c.Request.Context(), owner.String(), mint.String())
	if err != nil {
		fail(c, err)
		return
	}
	common.Success(c, b)
}

// List ?page=&limit=
func (h *Balance) List(c *gin.Context) {
	owner, ok := pathKey(c, "owner")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.Svc.ListBalances(c.Request.Context(), owner.String(), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	common.Success(c, list)
}

// Credit 开发环境水龙头
func (h *Balance) Credit(c *gin.Context) {
	if !h.Faucet {
		common.Fail(c, http.StatusNotFound, http.StatusNotFound, "faucet disabled")
		return
	}
	var req faucetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Svc.Credit(c.Request.Context(), req.Account, req.Mint, req.Amount); err != nil {
		fail(c, err)
		return
	}
	b, err := h.Svc.GetBalance(c.Request.Context(), req.Account, req.Mint)
	if err != nil {
		fail(c, err)
		return
	}
	common.Success(c, b)
}
