package logging

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var logg = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stdout)
	return l
}

func Logger() *logrus.Logger { return logg }

// SetMode: dev はデバッグまで出す
func SetMode(mode string) {
	if mode == "dev" {
		logg.SetLevel(logrus.DebugLevel)
		return
	}
	logg.SetLevel(logrus.InfoLevel)
}

func fields(module, funcName, context string, data any) logrus.Fields {
	f := logrus.Fields{
		"module":   module,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		f["data"] = data
	}
	return f
}

func LogError(module, funcName, context string, data any, err error) {
	msg := context
	if err != nil {
		msg = err.Error()
	}
	logg.WithFields(fields(module, funcName, context, data)).Error(msg)
}

// LogWarn: 集計のずれなど処理は続けるもの
func LogWarn(module, funcName, context string, data any) {
	logg.WithFields(fields(module, funcName, context, data)).Warn(context)
}

func LogInfo(module, funcName, context string, data any) {
	logg.WithFields(fields(module, funcName, context, data)).Info(context)
}

// Middleware は gin.Logger() の代わり
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logg.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		if uid, ok := c.Get("user_id"); ok {
			entry = entry.WithField("user_id", uid)
		}
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request")
		case c.Writer.Status() >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}
