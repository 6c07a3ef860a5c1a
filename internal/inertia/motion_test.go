package inertia

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleByFriction(t *testing.T) {
	assert.Equal(t, int64(32), scaleByFriction(32, 0))
	assert.Equal(t, int64(29), scaleByFriction(32, 24))
	assert.Equal(t, int64(0), scaleByFriction(1, 24))
	assert.Equal(t, int64(0), scaleByFriction(200, 255))
	// 負の値は0方向に切り捨てられる
	assert.Equal(t, int64(-28), scaleByFriction(-31, 24))
}

func TestQuadraticEase(t *testing.T) {
	assert.Equal(t, int64(0), quadraticEase(0, 32))
	assert.Equal(t, int64(256), quadraticEase(32, 32))
	assert.Equal(t, int64(-256), quadraticEase(-32, 32))
	assert.Equal(t, int64(64), quadraticEase(16, 32))
	assert.Equal(t, int64(-64), quadraticEase(-16, 32))
}

func TestClampMove(t *testing.T) {
	assert.Equal(t, int8(127), clampMove(1000))
	assert.Equal(t, int8(-127), clampMove(-1000))
	assert.Equal(t, int8(-127), clampMove(-128))
	assert.Equal(t, int8(5), clampMove(5))
}

func TestCalcVelocity(t *testing.T) {
	t.Run("accelerates one unit per call", func(t *testing.T) {
		assert.Equal(t, int8(1), calcVelocity(1, 0, 24, 32))
		assert.Equal(t, int8(-1), calcVelocity(-1, 0, 24, 32))
	})

	t.Run("stops at time_to_max", func(t *testing.T) {
		assert.Equal(t, int8(32), calcVelocity(1, 32, 24, 32))
		assert.Equal(t, int8(-32), calcVelocity(-1, -32, 24, 32))
	})

	t.Run("friction applies without direction", func(t *testing.T) {
		assert.Equal(t, int8(29), calcVelocity(0, 32, 24, 32))
		assert.Equal(t, int8(-28), calcVelocity(0, -32, 24, 32))
	})

	t.Run("friction and acceleration combine on reversal", func(t *testing.T) {
		// 32 -> 29 (摩擦) -> 28 (加速)
		assert.Equal(t, int8(28), calcVelocity(-1, 32, 24, 32))
		// -32 -> -28 (摩擦) -> -27 (加速)
		assert.Equal(t, int8(-27), calcVelocity(1, -32, 24, 32))
	})

	t.Run("zero friction keeps velocity", func(t *testing.T) {
		assert.Equal(t, int8(10), calcVelocity(0, 10, 0, 32))
	})
}

func TestCalcVelocityStaysInBounds(t *testing.T) {
	for _, timeToMax := range []int16{1, 2, 7, 32, 127} {
		for _, friction := range []uint8{0, 1, 24, 128, 255} {
			for v := -int(timeToMax); v <= int(timeToMax); v++ {
				for _, dir := range []int8{-1, 0, 1} {
					got := calcVelocity(dir, int8(v), friction, timeToMax)
					if int16(got) > timeToMax || int16(got) < -timeToMax {
						t.Fatalf("calcVelocity(%d, %d, %d, %d) = %d, out of bounds",
							dir, v, friction, timeToMax, got)
					}
				}
			}
		}
	}
}

func TestFrictionConverges(t *testing.T) {
	for _, friction := range []uint8{1, 24, 200, 255} {
		for _, start := range []int8{127, 64, 1, -1, -64, -127} {
			v := start
			steps := 0
			for v != 0 {
				next := calcVelocity(0, v, friction, 127)
				if abs8(next) >= abs8(v) {
					t.Fatalf("friction=%d: |%d| -> |%d| did not decrease", friction, v, next)
				}
				if next != 0 && sign(next) != sign(v) {
					t.Fatalf("friction=%d: sign flipped %d -> %d", friction, v, next)
				}
				v = next
				steps++
				if steps > 1000 {
					t.Fatalf("friction=%d start=%d did not converge", friction, start)
				}
			}
		}
	}
}

func TestCalcMovement(t *testing.T) {
	t.Run("frame zero uses move_delta", func(t *testing.T) {
		assert.Equal(t, int8(1), calcMovement(1, 0, 0, 1, 32, 16))
		assert.Equal(t, int8(-3), calcMovement(-1, 20, 0, 3, 32, 16))
		assert.Equal(t, int8(0), calcMovement(0, 20, 0, 3, 32, 16))
	})

	t.Run("quadratic curve", func(t *testing.T) {
		assert.Equal(t, int8(0), calcMovement(0, 0, 5, 1, 32, 16))
		assert.Equal(t, int8(1), calcMovement(1, 2, 5, 1, 32, 16))
		assert.Equal(t, int8(2), calcMovement(1, 8, 5, 1, 32, 16))
		assert.Equal(t, int8(5), calcMovement(1, 16, 5, 1, 32, 16))
		assert.Equal(t, int8(17), calcMovement(1, 32, 5, 1, 32, 16))
		assert.Equal(t, int8(-17), calcMovement(-1, -32, 5, 1, 32, 16))
	})

	t.Run("glide keeps moving without direction", func(t *testing.T) {
		assert.Equal(t, int8(17), calcMovement(0, 32, 5, 1, 32, 16))
	})
}

func TestCalcMovementClamped(t *testing.T) {
	for _, maxSpeed := range []int16{1, 16, 1000, math.MaxInt16} {
		for _, timeToMax := range []int16{1, 32, 127} {
			for v := math.MinInt8; v <= math.MaxInt8; v++ {
				for _, frame := range []uint32{0, 1} {
					for _, moveDelta := range []int8{math.MinInt8, 1, math.MaxInt8} {
						got := calcMovement(1, int8(v), frame, moveDelta, timeToMax, maxSpeed)
						if got > MoveMax || got < -MoveMax {
							t.Fatalf("calcMovement out of range: %d", got)
						}
					}
				}
			}
		}
	}
}

func abs8(v int8) int {
	if v < 0 {
		return -int(v)
	}
	return int(v)
}
