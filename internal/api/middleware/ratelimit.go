package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/saferoute/saferoute/internal/api/models"
)

// RateLimit is a sliding-window request budget. A non-positive Requests or
// Window disables it.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Route computation touches the directions provider and the fact database,
// so it gets a tighter budget than a plain read would.
var (
	DefaultRouteRateLimit = RateLimit{Requests: 30, Window: time.Minute}
	DefaultAdminRateLimit = RateLimit{Requests: 10, Window: time.Minute}
)

// Enabled reports whether the limit applies.
func (l RateLimit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// ByIP limits each client address. Behind a proxy, chi's RealIP must run
// first so the forwarded address is the key.
func (l RateLimit) ByIP() func(http.Handler) http.Handler {
	return l.limiter(httprate.KeyByRealIP)
}

// BySubject limits each authenticated token subject, falling back to the
// client address. It must run after RequireRole.
func (l RateLimit) BySubject() func(http.Handler) http.Handler {
	return l.limiter(func(r *http.Request) (string, error) {
		if subject := GetSubject(r.Context()); subject != "" {
			return "sub:" + subject, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func (l RateLimit) limiter(key httprate.KeyFunc) func(http.Handler) http.Handler {
	if !l.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	retryAfter := strconv.Itoa(int(math.Ceil(l.Window.Seconds())))
	return httprate.Limit(
		l.Requests,
		l.Window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			problem := models.KindTooManyRequests.New(GetRequestID(r.Context()),
				"request budget of "+strconv.Itoa(l.Requests)+" per "+l.Window.String()+" exceeded")
			problem.Instance = r.URL.Path
			problem.Write(w)
		}),
	)
}
