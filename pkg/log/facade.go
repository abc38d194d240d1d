package log

import (
	"context"
	"fmt"
	"log/slog"
)

func (l *BaseLogger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}
	ctx := context.Background()
	attrs := attrsFromMap(l.fields)
	attrs = append(attrs, attrsFromFieldSlice(fields)...)
	l.slogLogger.LogAttrs(ctx, toSlogLevel(level), msg, attrs...)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }
func (l *BaseLogger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields...) }

func (l *BaseLogger) Debugf(msg string, args ...interface{}) { l.log(DebugLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Infof(msg string, args ...interface{})  { l.log(InfoLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Warnf(msg string, args ...interface{})  { l.log(WarnLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Errorf(msg string, args ...interface{}) { l.log(ErrorLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) { l.log(FatalLevel, fmt.Sprintf(msg, args...)) }

func (l *BaseLogger) clone() *BaseLogger {
	return &BaseLogger{
		level:     l.level,
		fields:    mergeFields(l.fields, nil),
		formatter: l.formatter,
		outputs:   l.outputs,
	}
}

func (l *BaseLogger) withFields(extra Fields) Logger {
	nl := l.clone()
	nl.fields = mergeFields(l.fields, extra)
	nl.slogLogger = slog.New(newBridgeHandler(nl))
	return nl
}

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.withFields(Fields{key: value})
}

func (l *BaseLogger) WithFields(fields Fields) Logger { return l.withFields(fields) }

func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.withFields(Fields{"error": err.Error()})
}

func (l *BaseLogger) With(fields ...Field) Logger { return l.withFields(fieldsToMap(fields)) }

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	extra := ContextExtractor(ctx)
	if len(extra) == 0 {
		return l
	}
	return l.withFields(extra)
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.withFields(Fields{ComponentKey: component})
}

func (l *BaseLogger) SetLevel(level Level) { l.level = level }

func (l *BaseLogger) GetLevel() Level { return l.level }
