// SPDX-License-Identifier: MIT
package dsp

import "math"

// limiterDrive keeps the knee of the tanh curve below full scale so the
// summed mix saturates instead of hard-clipping at the device boundary.
const limiterDrive = 0.9

// SoftLimit applies y = tanh(0.9*x) * 0.9 in place over the buffer.
func SoftLimit(buf []float64) {
	for i, x := range buf {
		buf[i] = math.Tanh(x*limiterDrive) * limiterDrive
	}
}

// SoftLimitSample limits a single sample with the same curve as SoftLimit.
func SoftLimitSample(x float64) float64 {
	return math.Tanh(x*limiterDrive) * limiterDrive
}
