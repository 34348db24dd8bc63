package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	dev, err := New(Config{Development: true, Level: "debug"})
	require.NoError(t, err)
	require.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod, err := New(Config{Level: "WARN"})
	require.NoError(t, err)
	require.False(t, prod.Core().Enabled(zapcore.InfoLevel))
	require.True(t, prod.Core().Enabled(zapcore.WarnLevel))

	def, err := New(Config{})
	require.NoError(t, err)
	require.True(t, def.Core().Enabled(zapcore.InfoLevel))

	_, err = New(Config{Level: "loud"})
	require.Error(t, err)
}
