package common

import (
	"os"

	"go.uber.org/zap"
)

func initZapLogger() *zap.Logger {
	switch GZMAP_LOG_LEVEL {
	case "development":
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	case "production":
		fallthrough
	default:
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
}

var (
	GZMAP_LOG_LEVEL             = os.Getenv("GZMAP_LOG_LEVEL")
	logger          *zap.Logger = initZapLogger()
)

// GetLogger returns the process logger, rebuilding it when GZMAP_LOG_LEVEL
// changed since the last call. The returned pointer stays stable.
func GetLogger() *zap.Logger {
	if GZMAP_LOG_LEVEL != os.Getenv("GZMAP_LOG_LEVEL") {
		GZMAP_LOG_LEVEL = os.Getenv("GZMAP_LOG_LEVEL")
		*logger = *initZapLogger()
	}
	return logger
}
