package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/engine"
	"gopherdex.com/internal/funds"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/common"
)

const HeaderSigner = common.HeaderSigner

const CodeUnauthenticated = 1002001

type Engine interface {
	CreateMarket(ctx context.Context, payer solana.PublicKey, params dex.MarketParams) (dex.Market, error)
	Markets() []dex.Market
	View(market string) (*dex.View, error)
	Do(ctx context.Context, market string, cmd engine.Command) (engine.Result, error)
}

type Balances interface {
	GetBalance(ctx context.Context, account, mint string) (funds.Balance, error)
	ListBalances(ctx context.Context, account string, page, limit int) ([]funds.Balance, error)
	Credit(ctx context.Context, account, mint string, amount uint64) error
}

// signer 取调用方；没有就直接回 401
func signer(c *gin.Context) (solana.PublicKey, bool) {
	raw := c.GetHeader(HeaderSigner)
	if raw == "" {
		common.Fail(c, http.StatusUnauthorized, CodeUnauthenticated, "未登录")
		return solana.PublicKey{}, false
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, CodeUnauthenticated, "签名账户格式错误")
		return solana.PublicKey{}, false
	}
	return pk, true
}

// pathKey 路径里的 base58 公钥
func pathKey(c *gin.Context, name string) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(c.Param(name))
	if err != nil {
		badRequest(c, name+" is not a valid public key")
		return solana.PublicKey{}, false
	}
	return pk, true
}

func badRequest(c *gin.Context, msg string) {
	common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, msg)
}

// fail 引擎自身的错误先处理，剩下交给 xerr 映射
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownMarket):
		common.Fail(c, http.StatusNotFound, http.StatusNotFound, "market not found")
	case errors.Is(err, engine.ErrBadCommand):
		badRequest(c, err.Error())
	case errors.Is(err, engine.ErrEngineBusy):
		common.Fail(c, http.StatusTooManyRequests, common.CodeRateLimited, "engine busy")
	case errors.Is(err, engine.ErrActorDead), errors.Is(err, engine.ErrEngineStopped):
		common.FailLogged(c, http.StatusServiceUnavailable, common.CodeUnavailable, "服务繁忙", err)
	default:
		common.FailFromErr(c, err)
	}
}

func parseSide(s string) (matching.Side, bool) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return matching.Bid, true
	case "ask", "sell":
		return matching.Ask, true
	default:
		return 0, false
	}
}
