package modsim

import (
	"log"
	"os"
	"sync/atomic"
)

// LogProvider RFC5424 log message levels, only Debug and Error are used.
type LogProvider interface {
	Errorf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// clogs internal logging, embedded by the components that emit.
type clogs struct {
	logger LogProvider
	// log output enabled, 1: enable, 0: disable
	hasLog uint32
}

func newClogs(prefix string) clogs {
	return clogs{logger: newDefaultLogger(prefix)}
}

// LogMode set enable or disable log output.
func (sf *clogs) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&sf.hasLog, 1)
	} else {
		atomic.StoreUint32(&sf.hasLog, 0)
	}
}

// SetLogProvider set logger provider.
func (sf *clogs) SetLogProvider(p LogProvider) {
	if p != nil {
		sf.logger = p
	}
}

// Errorf Log ERROR level message.
func (sf *clogs) Errorf(format string, v ...interface{}) {
	if atomic.LoadUint32(&sf.hasLog) == 1 {
		sf.logger.Errorf(format, v...)
	}
}

// Debugf Log DEBUG level message.
func (sf *clogs) Debugf(format string, v ...interface{}) {
	if atomic.LoadUint32(&sf.hasLog) == 1 {
		sf.logger.Debugf(format, v...)
	}
}

// default log
type defaultLogger struct {
	*log.Logger
}

var _ LogProvider = (*defaultLogger)(nil)

func newDefaultLogger(prefix string) *defaultLogger {
	return &defaultLogger{log.New(os.Stderr, prefix, log.LstdFlags)}
}

// Errorf Log ERROR level message.
func (sf *defaultLogger) Errorf(format string, v ...interface{}) {
	sf.Printf("[E]: "+format, v...)
}

// Debugf Log DEBUG level message.
func (sf *defaultLogger) Debugf(format string, v ...interface{}) {
	sf.Printf("[D]: "+format, v...)
}
