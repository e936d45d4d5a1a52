package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/flowboard/core"
)

func TestZapLogger(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	l := WrapZap(zap.New(obs))

	l.Debug("refreshing")
	l.Info("refreshed 4 analytics records", map[string]interface{}{"workflow": "Fees"})
	l.Warn("guard failed", errors.New("unexpected end of expression"))
	l.Error("request failed", personArg(), 42)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "Fees", entries[1].ContextMap()["workflow"])
	assert.Equal(t, "unexpected end of expression", entries[2].ContextMap()["error"])

	ctx := entries[3].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "1", ctx["person.id"])
	assert.Equal(t, "admin", ctx["person.username"])
	assert.EqualValues(t, 42, ctx["arg1"])
}

func personArg() interface{} {
	return core.Person{ID: "1", Username: "admin", Email: "admin@example.com"}
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{local: WrapZap(zap.NewNop())}
	err := errors.New("boom")
	extras := map[string]interface{}{"path": "/v1/workflows"}

	got := l.prepare("request failed", []interface{}{err, personArg(), nil, extras, personArg()})
	assert.Equal(t, []interface{}{"request failed", err, extras}, got)
}
