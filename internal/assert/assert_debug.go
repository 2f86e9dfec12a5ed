//go:build debug

package assert

import (
	"fmt"
	"math"
)

func assertTrue(cond bool, msg string) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: %s", msg))
	}
}

func assertNotNaN(v float64, msg string) {
	if math.IsNaN(v) {
		panic(fmt.Sprintf("assertion failed (NaN): %s", msg))
	}
}
