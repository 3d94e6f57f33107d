package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"geofyle/internal/logging"
)

// Logger logs one line per request with request_id, method, path, status and
// latency (milliseconds). 5xx responses are logged at error level, 4xx at warn.
func Logger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		fields := []zap.Field{
			zap.String("request_id", RequestIDFrom(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Float64("latency", float64(time.Since(start).Microseconds())/1000),
		}
		if deviceID, ok := c.Locals(DeviceIDLocalKey).(string); ok && deviceID != "" {
			fields = append(fields, zap.String("device_id", deviceID))
		}

		lvl := zapcore.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			lvl = zapcore.ErrorLevel
		case status >= fiber.StatusBadRequest:
			lvl = zapcore.WarnLevel
		}
		log.Log(lvl, "http_request", fields...)

		return err
	}
}

// LoggerWithWriter is Logger backed by a JSON logger writing to w with
// timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	log, err := logging.NewWithWriter(w, "debug", loc)
	if err != nil {
		log = zap.NewNop()
	}
	return Logger(log.WithOptions(zap.WithCaller(false), zap.AddStacktrace(zapcore.FatalLevel)))
}
