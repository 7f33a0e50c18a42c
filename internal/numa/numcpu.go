package numa

import "runtime"

func numCPU() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
