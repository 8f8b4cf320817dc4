package pongoutils

// Logger is the subset of *logger.Logger used by this package.
type Logger interface {
	Infoln(v ...interface{})
	Infof(format string, v ...interface{})
	Errorln(v ...interface{})
	Errorf(format string, v ...interface{})
	Debugln(v ...interface{})
	Debugf(format string, v ...interface{})
	Traceln(v ...interface{})
	Tracef(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infoln(v ...interface{}) {}
func (nopLogger) Infof(format string, v ...interface{}) {}
func (nopLogger) Errorln(v ...interface{}) {}
func (nopLogger) Errorf(format string, v ...interface{}) {}
func (nopLogger) Debugln(v ...interface{}) {}
func (nopLogger) Debugf(format string, v ...interface{}) {}
func (nopLogger) Traceln(v ...interface{}) {}
func (nopLogger) Tracef(format string, v ...interface{}) {}

func orNop(log Logger) Logger {
	if log == nil {
		return nopLogger{}
	}
	return log
}
