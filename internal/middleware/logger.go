package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/hollomancer/sbir-analytics-sub004/internal/context"
)

// HeaderRunID carries the batch run id on batch responses
const HeaderRunID = "X-Run-ID"

// quietPrefixes are health and metrics routes logged at debug level
var quietPrefixes = []string{"/api/v1/health", "/metrics"}

// Logger logs one line per request. Server errors log at error level, client
// errors at warn and health checks at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			ctx := req.Context()
			fields := map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"source":        context.GetSource(ctx),
				"method":        context.GetMethod(ctx),
				"route":         context.GetRoute(ctx),
				"uri":           req.RequestURI,
				"status":        res.Status,
				"remote_ip":     context.GetRemoteIP(ctx),
				"response_time": time.Since(start),
				"request_size":  req.ContentLength,
				"response_size": res.Size,
			}
			if runID := res.Header().Get(HeaderRunID); runID != "" {
				fields["run_id"] = runID
			}

			log := logger.WithContext(ctx).WithFields(fields)
			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("Request failed")
			case res.Status >= http.StatusBadRequest:
				log.Warn("Request rejected")
			case isQuiet(req.URL.Path):
				log.Debug("Request")
			default:
				log.Info("Request")
			}
			return nil
		}
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
