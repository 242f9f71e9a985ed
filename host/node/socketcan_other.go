//go:build !linux

package node

import (
	"context"
	"errors"
)

// SocketCANBus is only available on Linux
type SocketCANBus struct {
	Bus
}

// DialSocketCAN always fails outside Linux
func DialSocketCAN(ctx context.Context, iface string) (*SocketCANBus, error) {
	return nil, errors.New("socketcan is only supported on linux")
}
