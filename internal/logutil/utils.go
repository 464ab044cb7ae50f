package logutil

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Payload groups a set of zap.Fields under a single "payload" object field.
// Zero reflection, same speed as inline fields.
func Payload(fields ...zap.Field) zap.Field {
	return zap.Object("payload", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		for _, f := range fields {
			f.AddTo(enc)
		}
		return nil
	}))
}
