package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tokmz/huddle"
)

// CORSConfig CORS 中间件配置
type CORSConfig struct {
	// 支持精确匹配和 "https://*.example.com" 形式的通配符
	AllowOrigins     []string      `mapstructure:"allow_origins" yaml:"allow_origins"`
	AllowMethods     []string      `mapstructure:"allow_methods" yaml:"allow_methods"`
	AllowHeaders     []string      `mapstructure:"allow_headers" yaml:"allow_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers" yaml:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials" yaml:"allow_credentials"` // 不能与 ["*"] 同时使用
	MaxAge           time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// DefaultCORSConfig 允许所有源的只读接口
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
}

// CORS 创建 CORS 中间件
func CORS(cfgs ...*CORSConfig) huddle.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	allowAll := len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*"
	if cfg.AllowCredentials && allowAll {
		panic("huddle/middleware: CORS AllowCredentials cannot be used with AllowOrigins [\"*\"]")
	}
	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	var wildcards []string
	exact := make(map[string]bool)
	if !allowAll {
		for _, o := range cfg.AllowOrigins {
			if strings.Contains(o, "*") {
				wildcards = append(wildcards, o)
			} else {
				exact[o] = true
			}
		}
	}

	return func(c *huddle.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || (!allowAll && !matchOrigin(origin, exact, wildcards)) {
			c.Next()
			return
		}

		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
		}
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", exposeHeaders)
		}

		if c.Request().Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func matchOrigin(origin string, exact map[string]bool, wildcards []string) bool {
	if exact[origin] {
		return true
	}
	for _, pattern := range wildcards {
		prefix, suffix, _ := strings.Cut(pattern, "*")
		if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) &&
			len(origin) > len(prefix)+len(suffix) {
			return true
		}
	}
	return false
}
