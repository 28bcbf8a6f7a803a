package workflow

import "math"

// supportedAspectRatios 是受支持的输出宽高比，按名称与数值对照。
var supportedAspectRatios = []struct {
	name  string
	value float64
}{
	{"9:16", 9.0 / 16.0},
	{"4:5", 4.0 / 5.0},
	{"3:4", 3.0 / 4.0},
	{"2:3", 2.0 / 3.0},
	{"1:1", 1.0},
	{"3:2", 3.0 / 2.0},
	{"4:3", 4.0 / 3.0},
	{"5:4", 5.0 / 4.0},
	{"16:9", 16.0 / 9.0},
	{"21:9", 21.0 / 9.0},
}

// ResolveAspectRatio 将任意输入尺寸吸附到最接近的受支持宽高比，
// 以 |target - width/height| 最小为准。非法尺寸回落到 1:1。
func ResolveAspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}

	ratio := float64(width) / float64(height)
	best := supportedAspectRatios[0].name
	bestDiff := math.Abs(supportedAspectRatios[0].value - ratio)
	for _, candidate := range supportedAspectRatios[1:] {
		diff := math.Abs(candidate.value - ratio)
		if diff < bestDiff {
			best = candidate.name
			bestDiff = diff
		}
	}
	return best
}
