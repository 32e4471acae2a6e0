package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormTraceLevel(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())

	level, ok := l.traceLevel(time.Millisecond, errors.New("connection reset"))
	assert.True(t, ok)
	assert.Equal(t, zapcore.ErrorLevel, level)

	_, ok = l.traceLevel(time.Millisecond, gorm.ErrDuplicatedKey)
	assert.False(t, ok, "duplicate keys are only logged at info verbosity")

	level, ok = l.traceLevel(time.Second, nil)
	assert.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, level)

	_, ok = l.traceLevel(time.Millisecond, nil)
	assert.False(t, ok)

	verbose := l.LogMode(gormlogger.Info).(*GormLogger)
	level, ok = verbose.traceLevel(time.Millisecond, gorm.ErrRecordNotFound)
	assert.True(t, ok)
	assert.Equal(t, zapcore.DebugLevel, level)
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("WITH t AS (SELECT 1) SELECT * FROM t"))
	assert.Equal(t, "UPDATE", operationFromSQL(`UPDATE "invoices" SET paid_amount = 1`))
	assert.Equal(t, "INSERT", operationFromSQL("insert into payments values (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
