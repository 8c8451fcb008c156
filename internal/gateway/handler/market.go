package handler

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/engine"
	"gopherdex.com/pkg/common"
	"gopherdex.com/pkg/trace"
	"gopherdex.com/pkg/xerr"
)

type Market struct {
	Eng Engine
}

type placeOrderReq struct {
	Side     string `json:"side" binding:"required"`
	Price    uint64 `json:"price" binding:"required"`
	Quantity uint64 `json:"quantity" binding:"required"`
	PostOnly bool   `json:"postOnly"`
	ReqID    uint64 `json:"reqId"`
}

type matchReq struct {
	Limit    uint32   `json:"limit"`
	Accounts []string `json:"accounts"`
}

type setFeesReq struct {
	MakerFeeBps uint16 `json:"makerFeeBps"`
	TakerFeeBps uint16 `json:"takerFeeBps"`
}

type setPauseReq struct {
	Paused bool `json:"paused"`
}

// Create POST /api/markets，调用方成为管理员
func (h *Market) Create(c *gin.Context) {
	payer, ok := signer(c)
	if !ok {
		return
	}
	var params dex.MarketParams
	if err := c.ShouldBindJSON(&params); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.Eng.CreateMarket(c.Request.Context(), payer, params)
	if err != nil {
		fail(c, err)
		return
	}
	common.Success(c, m)
}

func (h *Market) List(c *gin.Context) {
	common.Success(c, h.Eng.Markets())
}

func (h *Market) Get(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	common.Success(c, v.Market)
}

// Book 人类可读的深度，价格和数量都换算过精度
func (h *Market) Book(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	common.Success(c, v.Depth())
}

func (h *Market) PlaceOrder(c *gin.Context) {
	var req placeOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		common.FailFromErr(c, xerr.ErrInvalidOrderInput)
		return
	}
	h.do(c, engine.Command{
		Type:     engine.CmdNewOrder,
		ReqID:    req.ReqID,
		Side:     side,
		Price:    req.Price,
		Qty:      req.Quantity,
		PostOnly: req.PostOnly,
	})
}

func (h *Market) CancelOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "order id must be a number")
		return
	}
	h.do(c, engine.Command{Type: engine.CmdCancel, OrderID: id})
}

// Match 任何人都可以触发撮合
func (h *Market) Match(c *gin.Context) {
	var req matchReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.Limit == 0 {
		req.Limit = 5
	}
	cmd := engine.Command{Type: engine.CmdMatch, Limit: req.Limit}
	for _, a := range req.Accounts {
		pk, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			badRequest(c, "invalid account "+a)
			return
		}
		cmd.Accounts = append(cmd.Accounts, pk)
	}
	h.doAs(c, solana.PublicKey{}, cmd)
}

func (h *Market) Settle(c *gin.Context) {
	h.do(c, engine.Command{Type: engine.CmdSettle})
}

// CloseOpenOrders ?destination= 缺省退回调用方
func (h *Market) CloseOpenOrders(c *gin.Context) {
	who, ok := signer(c)
	if !ok {
		return
	}
	dest := who
	if raw := c.Query("destination"); raw != "" {
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			badRequest(c, "invalid destination")
			return
		}
		dest = pk
	}
	h.doAs(c, who, engine.Command{Type: engine.CmdCloseOpenOrders, Destination: dest})
}

func (h *Market) OpenOrders(c *gin.Context) {
	owner, ok := pathKey(c, "owner")
	if !ok {
		return
	}
	v, ok := h.view(c)
	if !ok {
		return
	}
	oo, found := v.OpenOrdersOfOwner(owner)
	if !found {
		common.FailFromErr(c, xerr.ErrOpenOrdersNotFound)
		return
	}
	common.Success(c, oo)
}

func (h *Market) SetFees(c *gin.Context) {
	var req setFeesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.do(c, engine.Command{Type: engine.CmdSetFees, MakerFeeBps: req.MakerFeeBps, TakerFeeBps: req.TakerFeeBps})
}

func (h *Market) SetPause(c *gin.Context) {
	var req setPauseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.do(c, engine.Command{Type: engine.CmdSetPause, Paused: req.Paused})
}

func (h *Market) view(c *gin.Context) (*dex.View, bool) {
	m, ok := pathKey(c, "market")
	if !ok {
		return nil, false
	}
	v, err := h.Eng.View(m.String())
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return v, true
}

// do 需要调用方身份的命令
func (h *Market) do(c *gin.Context, cmd engine.Command) {
	who, ok := signer(c)
	if !ok {
		return
	}
	h.doAs(c, who, cmd)
}

func (h *Market) doAs(c *gin.Context, who solana.PublicKey, cmd engine.Command) {
	m, ok := pathKey(c, "market")
	if !ok {
		return
	}
	cmd.Signer = who
	ctx, span := trace.Start(c.Request.Context(), "engine."+cmd.Type.String(), attribute.String("market", m.String()))
	res, err := h.Eng.Do(ctx, m.String(), cmd)
	trace.End(span, err)
	if err != nil {
		fail(c, err)
		return
	}
	common.Success(c, res)
}
