package bird

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger   = zap.NewNop().Sugar()
	loggerMx sync.RWMutex
)

// SetLogger replaces the package logger. Passing nil silences logging.
func SetLogger(l *zap.Logger) {
	loggerMx.Lock()
	defer loggerMx.Unlock()

	if l == nil {
		l = zap.NewNop()
	}
	logger = l.Named("bird").Sugar()
}

func log() *zap.SugaredLogger {
	loggerMx.RLock()
	defer loggerMx.RUnlock()

	return logger
}
