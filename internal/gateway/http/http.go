package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
	"gopherdex.com/internal/gateway/handler"
	"gopherdex.com/internal/gateway/http/router"
	"gopherdex.com/pkg/middleware"
	"gopherdex.com/pkg/ratelimit"
)

type Options struct {
	Addr      string
	Service   string
	RateLimit float64 // 每个 IP 的 rps，<=0 不限流
	Burst     int
	Market    *handler.Market
	Balance   *handler.Balance
}

// NewRouter ctx 结束时限流器的清理协程跟着退出
func NewRouter(ctx context.Context, o Options) *http.Server {
	if o.Service == "" {
		o.Service = "dex-service"
	}
	r := gin.New()
	p := ginprom.NewPrometheus("gopherdex")
	p.Use(r)
	r.Use(
		otelgin.Middleware(o.Service),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)
	if o.RateLimit > 0 {
		burst := o.Burst
		if burst <= 0 {
			burst = int(o.RateLimit) * 2
		}
		store := ratelimit.NewStore(rate.Limit(o.RateLimit), burst, 10*time.Minute)
		store.StartJanitor(ctx, time.Minute)
		r.Use(middleware.RateLimit(o.Service, store))
	}

	api := r.Group("/api")
	if o.Market != nil {
		router.Market(api, o.Market)
	}
	if o.Balance != nil {
		router.Balance(api, o.Balance)
	}
	return &http.Server{
		Addr:           o.Addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
