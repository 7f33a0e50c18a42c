//go:build !amd64

package cycles

import "runtime"

func runtimeGosched() {
	runtime.Gosched()
}
