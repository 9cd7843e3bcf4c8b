//go:build !unix

package codealloc

import (
	"fmt"
	"runtime"
)

func hostMapper() (Mapper, error) {
	return nil, fmt.Errorf("codealloc: no executable memory support on %s", runtime.GOOS)
}
