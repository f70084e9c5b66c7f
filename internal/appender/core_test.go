package appender

import (
	"errors"
	"testing"

	"github.com/fyrsmithlabs/runlogd/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestCore_SubmitsEntries(t *testing.T) {
	a, sink := newTestAppender(t, nil)
	logger := zap.New(NewCore(a, zapcore.DebugLevel)).Named("suite")

	logger.Info("run started", Thread("w1"), Kind(event.KindStartRun), EntityID(11), Name("nightly"))
	logger.With(Thread("w1")).Warn("disk slow", zap.String("device", "sda"), zap.Int("latency_ms", 120))
	logger.Debug("no thread")
	closeAppender(t, a)

	_, recs := sink.snapshot()
	require.Len(t, recs, 3)

	assert.Equal(t, event.KindStartRun, recs[0].Kind)
	assert.Equal(t, int64(11), recs[0].RunID)
	assert.Equal(t, "nightly", recs[0].Name)
	assert.Equal(t, "suite", recs[0].Logger)
	assert.Empty(t, recs[0].Attributes)

	assert.Equal(t, event.KindMessage, recs[1].Kind)
	assert.Equal(t, "w1", recs[1].ThreadKey)
	assert.Equal(t, zapcore.WarnLevel, recs[1].Severity)
	assert.Equal(t, map[string]string{"device": "sda", "latency_ms": "120"}, recs[1].Attributes)

	assert.Equal(t, DefaultThreadKey, recs[2].ThreadKey)
}

func TestCore_LevelEnabler(t *testing.T) {
	a, sink := newTestAppender(t, nil)
	logger := zap.New(NewCore(a, zapcore.WarnLevel))

	logger.Info("skipped", Thread("w1"))
	logger.Error("kept", Thread("w1"))
	closeAppender(t, a)

	_, recs := sink.snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0].Message)
}

func TestCore_NameOnlyForLifecycleEntries(t *testing.T) {
	a, sink := newTestAppender(t, nil)
	logger := zap.New(NewCore(a, zapcore.DebugLevel))

	logger.Info("plain", Thread("w1"), Name("not-a-run"))
	closeAppender(t, a)

	_, recs := sink.snapshot()
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Name)
	assert.Equal(t, "not-a-run", recs[0].Attr(FieldName))
}

func TestCore_UnknownKind(t *testing.T) {
	a, _ := newTestAppender(t, nil)
	defer closeAppender(t, a)
	core := NewCore(a, zapcore.DebugLevel)

	err := core.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: "m"},
		[]zapcore.Field{zap.String(FieldKind, "bogus")})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrControlKind))
}
