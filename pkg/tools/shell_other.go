//go:build !linux

package tools

import (
	"errors"
	"syscall"
)

func isolateNetwork(attr *syscall.SysProcAttr) error {
	return errors.New("network isolation is only supported on linux")
}
