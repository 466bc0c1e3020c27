//go:build !tinygo && !cgo

package hal

import (
	"context"
	"errors"
)

func RunWindow(context.Context, Kernel, HostConfig) error {
	return errors.New("window mode requires cgo (build/run with CGO_ENABLED=1)")
}
