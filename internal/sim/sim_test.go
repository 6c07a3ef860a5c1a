package sim

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/keyball-inertia/internal/inertia"
)

func TestRunHoldAndGlide(t *testing.T) {
	cfg := inertia.DefaultConfig().WithDirection(1, 0)

	samples, err := Run(cfg, 40, 500)
	require.NoError(t, err)

	// 即時出力 + 押下中40ティック + 減速19ティック
	require.Len(t, samples, 60)

	first := samples[0]
	assert.True(t, first.Emitted)
	assert.Equal(t, int8(1), first.DX)
	assert.Equal(t, int64(0), first.TimeMs)

	assert.Equal(t, int64(150), samples[1].TimeMs)
	assert.Equal(t, int64(166), samples[2].TimeMs)

	peak := samples[40]
	assert.True(t, peak.Held)
	assert.Equal(t, int8(32), peak.XVelocity)
	assert.Equal(t, int8(17), peak.DX)

	glide := samples[41]
	assert.False(t, glide.Held)
	assert.Equal(t, int8(29), glide.XVelocity)

	last := samples[len(samples)-1]
	assert.False(t, last.Emitted)
	assert.Equal(t, int8(0), last.XVelocity)
	assert.Equal(t, uint32(0), last.Frame)

	x, y := Distance(samples)
	assert.Greater(t, x, 0)
	assert.Equal(t, 0, y)
}

func TestRunStopsAtMaxTicks(t *testing.T) {
	cfg := inertia.DefaultConfig().WithDirection(0, -1)

	samples, err := Run(cfg, 1000, 10)
	require.NoError(t, err)
	assert.Len(t, samples, 11)
	assert.Equal(t, int8(-10), samples[10].YVelocity)
}

func TestRunValidation(t *testing.T) {
	_, err := Run(inertia.DefaultConfig(), 10, 10)
	assert.ErrorIs(t, err, ErrNoDirection)

	cfg := inertia.DefaultConfig().WithDirection(1, 0)
	cfg.IntervalMs = 0
	_, err = Run(cfg, 10, 10)
	assert.ErrorIs(t, err, inertia.ErrInvalidInterval)
}

func TestWrite(t *testing.T) {
	samples, err := Run(inertia.DefaultConfig().WithDirection(1, 0), 2, 50)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, samples))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, len(samples)+1)
	assert.Contains(t, lines[0], "tick")
	assert.Contains(t, lines[1], "*")
}
