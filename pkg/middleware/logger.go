package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

// Logger writes one structured log line per request. Probe routes are
// logged at debug level.
func Logger(logger ectologger.Logger, quietPaths ...string) echo.MiddlewareFunc {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			entry := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":    appctx.GetRequestID(req.Context()),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         c.Path(),
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_time": elapsed.String(),
				"response_size": strconv.FormatInt(res.Size, 10),
			})

			if _, ok := quiet[c.Path()]; ok {
				entry.Debug("Request")
			} else {
				entry.Info("Request")
			}

			return nil
		}
	}
}
