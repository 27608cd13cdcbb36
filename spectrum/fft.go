// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2022
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package spectrum turns blocks of IQ samples into the magnitude spectrum
// and colored waterfall rows used to visualize the band.
package spectrum

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
)

// FFT transforms x in place with an iterative radix-2 Cooley-Tukey
// decimation in time. The output is in natural order, with the DC term at
// index 0.
//
// len(x) must be a power of two. Anything else is a programming error, and
// will panic.
func FFT(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}
	if n&(n-1) != 0 {
		panic(fmt.Sprintf("spectrum: FFT length %d is not a power of two", n))
	}

	shift := bits.UintSize - bits.Len(uint(n-1))
	for i := 0; i < n; i++ {
		j := int(bits.Reverse(uint(i)) >> shift)
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := cmplx.Rect(1, -2*math.Pi/float64(size))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				a := x[start+k]
				b := x[start+k+half] * w
				x[start+k] = a + b
				x[start+k+half] = a - b
				w *= step
			}
		}
	}
}

// Window returns a symmetric Hann window of length n, whose first and last
// values are zero.
func Window(n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{1}
	}
	return window.Hann(n)
}

// Shift returns the index into natural-order FFT output that lands at index
// i once the spectrum is re-centered around DC.
func Shift(i, n int) int {
	return (i + n/2) % n
}

// Decibels converts a linear magnitude into dB, with a floor so that a bin
// of exact silence doesn't become -Inf.
func Decibels(mag float64) float64 {
	return 20 * math.Log10(mag+1e-12)
}

// vim: foldmethod=marker
