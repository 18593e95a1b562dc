package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig 限流配置
//
// 示例：
// Rate: "600-M"
// PerRouteRates: {"/api/projects/:id/recordings": "120-M"}
// SkipPaths: ["/system/health", "/metrics"] 前缀匹配
type RateLimiterConfig struct {
	Rate          string            `json:"rate"`
	PerRouteRates map[string]string `json:"per_route_rates"`
	SkipPaths     []string          `json:"skip_paths"`
	AddHeaders    bool              `json:"add_headers"`
}

// RateLimiter 按速率字符串缓存 limiter 实例，按客户端 IP + 路由计数
type RateLimiter struct {
	cfg            RateLimiterConfig
	store          limiter.Store
	limitersByRate map[string]*limiter.Limiter
	mu             sync.Mutex
}

// NewRateLimiter store 为空时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	return &RateLimiter{
		cfg:            cfg,
		store:          store,
		limitersByRate: make(map[string]*limiter.Limiter),
	}
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if l.skipped(route) {
			c.Next()
			return
		}

		ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
		lim := l.getLimiter(l.pickRate(route))
		ctx, err := lim.Get(c, "iprt:"+ip+":"+route)
		if err != nil {
			// 存储异常时放行
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		}
		if ctx.Reached {
			retry := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Too Many Requests"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) skipped(route string) bool {
	for _, pref := range l.cfg.SkipPaths {
		if pref != "" && strings.HasPrefix(route, pref) {
			return true
		}
	}
	return false
}

func (l *RateLimiter) pickRate(route string) string {
	if r, ok := l.cfg.PerRouteRates[route]; ok && r != "" {
		return r
	}
	if l.cfg.Rate != "" {
		return l.cfg.Rate
	}
	return "10-S"
}

func (l *RateLimiter) getLimiter(rateStr string) *limiter.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limitersByRate[rateStr]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r = limiter.Rate{Period: time.Second, Limit: 10}
	}
	lim := limiter.New(l.store, r)
	l.limitersByRate[rateStr] = lim
	return lim
}
