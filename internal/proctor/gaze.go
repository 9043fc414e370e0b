package proctor

import "examguard/pkg/types"

// GazeMarginDivisor sets the width of the edge band: an eye centre closer
// than frame/5 to any edge counts as looking away. It is a policy choice,
// not a calibrated constant.
const GazeMarginDivisor = 5.0

// EyeCenter returns the midpoint between both eyes, or false when either
// landmark is missing
func EyeCenter(face types.Face) (types.Point, bool) {
	if face.LeftEye == nil || face.RightEye == nil {
		return types.Point{}, false
	}
	return types.Point{
		X: (face.LeftEye.X + face.RightEye.X) / 2,
		Y: (face.LeftEye.Y + face.RightEye.Y) / 2,
	}, true
}

// InMarginBand reports whether p lies within the edge band of a
// width x height frame
func InMarginBand(p types.Point, width, height float64) bool {
	mx := width / GazeMarginDivisor
	my := height / GazeMarginDivisor
	return p.X < mx || p.X > width-mx || p.Y < my || p.Y > height-my
}
