package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gopherdex.com/internal/engine"
	"gopherdex.com/internal/funds"
	"gopherdex.com/internal/funds/repo/memory"
	"gopherdex.com/internal/gateway/handler"
	"gopherdex.com/internal/gateway/http/router"
)

var (
	admin     = solana.PublicKey{0xA0}
	alice     = solana.PublicKey{0xA1}
	bob       = solana.PublicKey{0xB0}
	baseMint  = solana.PublicKey{0x0B}
	quoteMint = solana.PublicKey{0x0C}
)

type resp struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t *testing.T
	r *gin.Engine
}

func newServer(t *testing.T, faucet bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := engine.NewEngine(engine.EngineConfig{})
	t.Cleanup(e.Stop)

	r := gin.New()
	api := r.Group("/api")
	router.Market(api, &handler.Market{Eng: e})
	svc := funds.NewBalanceService(memory.NewBalancesRepo(), nil, 0)
	router.Balance(api, &handler.Balance{Svc: svc, Faucet: faucet})
	return &testServer{t: t, r: r}
}

func (s *testServer) call(method, path string, signer *solana.PublicKey, body interface{}) (int, resp) {
	s.t.Helper()
	var rd bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&rd).Encode(body))
	}
	req := httptest.NewRequest(method, path, &rd)
	req.Header.Set("Content-Type", "application/json")
	if signer != nil {
		req.Header.Set(handler.HeaderSigner, signer.String())
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	var out resp
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (s *testServer) createMarket() string {
	s.t.Helper()
	code, out := s.call(http.MethodPost, "/api/markets", &admin, map[string]interface{}{
		"baseMint":      baseMint.String(),
		"quoteMint":     quoteMint.String(),
		"baseDecimals":  9,
		"quoteDecimals": 6,
		"makerFeeBps":   20,
		"takerFeeBps":   40,
		"tickSize":      100,
		"baseLotSize":   1_000_000,
	})
	require.Equal(s.t, http.StatusOK, code, out.Message)
	var m struct {
		Address   solana.PublicKey `json:"address"`
		Authority solana.PublicKey `json:"authority"`
	}
	require.NoError(s.t, json.Unmarshal(out.Data, &m))
	require.Equal(s.t, admin, m.Authority)
	return "/api/markets/" + m.Address.String()
}

func order(side string, price, qty uint64) map[string]interface{} {
	return map[string]interface{}{"side": side, "price": price, "quantity": qty}
}

func TestMarket_TradeLifecycle(t *testing.T) {
	s := newServer(t, false)
	base := s.createMarket()

	code, _ := s.call(http.MethodGet, "/api/markets", nil, nil)
	require.Equal(t, http.StatusOK, code)

	code, out := s.call(http.MethodPost, base+"/orders", &alice, order("bid", 2_000_000, 1_000_000_000))
	require.Equal(t, http.StatusOK, code, out.Message)
	var placed struct {
		OrderID uint64 `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &placed))
	require.Equal(t, uint64(1), placed.OrderID)

	code, out = s.call(http.MethodPost, base+"/orders", &bob, order("ask", 2_000_000, 1_000_000_000))
	require.Equal(t, http.StatusOK, code, out.Message)

	code, out = s.call(http.MethodGet, base+"/book", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var depth struct {
		Bids []json.RawMessage `json:"bids"`
		Asks []json.RawMessage `json:"asks"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &depth))
	require.Len(t, depth.Bids, 1)
	require.Len(t, depth.Asks, 1)

	// 不带签名也能撮合
	code, out = s.call(http.MethodPost, base+"/match", nil, map[string]interface{}{"limit": 3})
	require.Equal(t, http.StatusOK, code, out.Message)
	var matched struct {
		Matched int `json:"matched"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &matched))
	require.Equal(t, 1, matched.Matched)

	code, out = s.call(http.MethodGet, base+"/book", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(out.Data, &depth))
	require.Empty(t, depth.Bids)
	require.Empty(t, depth.Asks)

	code, out = s.call(http.MethodGet, base+"/open-orders/"+alice.String(), nil, nil)
	require.Equal(t, http.StatusOK, code, out.Message)
	var oo struct {
		Owner    solana.PublicKey `json:"owner"`
		BaseFree uint64           `json:"baseFree"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &oo))
	require.Equal(t, alice, oo.Owner)
	require.Equal(t, uint64(1_000_000_000), oo.BaseFree)

	code, out = s.call(http.MethodPost, base+"/settle", &alice, nil)
	require.Equal(t, http.StatusOK, code, out.Message)
	code, out = s.call(http.MethodDelete, base+"/open-orders", &alice, nil)
	require.Equal(t, http.StatusOK, code, out.Message)

	code, out = s.call(http.MethodGet, base+"/open-orders/"+alice.String(), nil, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, 6100, out.Code)
}

func TestMarket_ErrorMapping(t *testing.T) {
	s := newServer(t, false)
	base := s.createMarket()

	// 重复建市场
	code, out := s.call(http.MethodPost, "/api/markets", &admin, map[string]interface{}{
		"baseMint": baseMint.String(), "quoteMint": quoteMint.String(),
		"baseDecimals": 9, "quoteDecimals": 6, "tickSize": 100, "baseLotSize": 1_000_000,
	})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, 6102, out.Code)

	code, _ = s.call(http.MethodPost, base+"/orders", nil, order("bid", 2_000_000, 1_000_000_000))
	require.Equal(t, http.StatusUnauthorized, code)

	code, out = s.call(http.MethodPost, base+"/orders", &alice, order("sideways", 2_000_000, 1_000_000_000))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, 6004, out.Code)

	code, out = s.call(http.MethodPost, base+"/orders", &alice, order("bid", 2_000_050, 1_000_000_000))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, 6012, out.Code)

	code, _ = s.call(http.MethodDelete, base+"/orders/42", &alice, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = s.call(http.MethodDelete, base+"/orders/abc", &alice, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, out = s.call(http.MethodPut, base+"/fees", &alice, map[string]interface{}{"makerFeeBps": 1, "takerFeeBps": 2})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, 6003, out.Code)

	code, out = s.call(http.MethodPut, base+"/pause", &admin, map[string]interface{}{"paused": true})
	require.Equal(t, http.StatusOK, code, out.Message)
	code, out = s.call(http.MethodPost, base+"/orders", &alice, order("bid", 2_000_000, 1_000_000_000))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, 6011, out.Code)

	code, _ = s.call(http.MethodGet, "/api/markets/"+solana.PublicKey{0x77}.String()+"/book", nil, nil)
	require.Equal(t, http.StatusNotFound, code)
	code, _ = s.call(http.MethodGet, "/api/markets/not-a-key", nil, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestBalance_Faucet(t *testing.T) {
	off := newServer(t, false)
	code, _ := off.call(http.MethodPost, "/api/faucet", nil, map[string]interface{}{
		"account": alice.String(), "mint": quoteMint.String(), "amount": 5,
	})
	require.Equal(t, http.StatusNotFound, code)

	s := newServer(t, true)
	code, out := s.call(http.MethodPost, "/api/faucet", nil, map[string]interface{}{
		"account": alice.String(), "mint": quoteMint.String(), "amount": 5_000_000,
	})
	require.Equal(t, http.StatusOK, code, out.Message)

	code, out = s.call(http.MethodGet, "/api/balances/"+alice.String()+"/"+quoteMint.String(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	var b funds.Balance
	require.NoError(t, json.Unmarshal(out.Data, &b))
	require.Equal(t, uint64(5_000_000), b.Amount)

	code, out = s.call(http.MethodGet, "/api/balances/"+bob.String()+"/"+quoteMint.String(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(out.Data, &b))
	require.Zero(t, b.Amount)

	code, out = s.call(http.MethodGet, "/api/balances/"+alice.String()+"?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var list []funds.Balance
	require.NoError(t, json.Unmarshal(out.Data, &list))
	require.Len(t, list, 1)
}
