package inertia

import "math"

// MoveMax は1ティックで出力できる移動量の最大値
const MoveMax = 127

// 固定小数点 (Q8) のシフト量
const fixedShift = 8

// scaleByFriction は速度に (256 - friction) / 256 を掛ける。
// 結果は0方向に切り捨てられる。
func scaleByFriction(v int64, friction uint8) int64 {
	return v * (256 - int64(friction)) / 256
}

// quadraticEase は速度から「加速カーブ上の位置」を Q8 で返す。
// 値は velocity/timeToMax の2乗で、符号は velocity に合わせる。
func quadraticEase(velocity int8, timeToMax int16) int64 {
	percent := (int64(velocity) << fixedShift) / int64(timeToMax)
	percent = (percent * percent) >> fixedShift
	if velocity < 0 {
		percent = -percent
	}
	return percent
}

// clampMove は移動量を [-MoveMax, MoveMax] に飽和させる
func clampMove(move int64) int8 {
	if move > MoveMax {
		return MoveMax
	}
	if move < -MoveMax {
		return -MoveMax
	}
	return int8(move)
}

// calcVelocity は1軸分の速度を更新する。
// 摩擦で減衰させたあと、方向に向かって1単位だけ加速する。
func calcVelocity(dir int8, velocity int8, friction uint8, timeToMax int16) int8 {
	v := int64(velocity)

	if dir >= 0 && v < 0 {
		v = scaleByFriction(v+1, friction)
	} else if dir <= 0 && v > 0 {
		v = scaleByFriction(v, friction)
	}

	if dir > 0 && v < int64(timeToMax) {
		v++
	} else if dir < 0 && v > -int64(timeToMax) {
		v--
	}

	return narrow(v)
}

// calcMovement は更新済みの速度から1軸分の移動量を求める
func calcMovement(dir int8, velocity int8, frame uint32, moveDelta int8, timeToMax, maxSpeed int16) int8 {
	if frame == 0 {
		return clampMove(int64(dir) * int64(moveDelta))
	}

	percent := quadraticEase(velocity, timeToMax)
	move := int64(sign(velocity)) + ((int64(maxSpeed) * percent) >> fixedShift)
	return clampMove(move)
}

func sign(v int8) int8 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func narrow(v int64) int8 {
	if v > math.MaxInt8 {
		return math.MaxInt8
	}
	if v < math.MinInt8 {
		return math.MinInt8
	}
	return int8(v)
}
