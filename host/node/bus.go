// Package node is the host side of the canmotor protocol: it commands a
// motor node and decodes the events it reports
package node

import (
	"context"

	"go.einride.tech/can"
)

// Bus carries raw CAN frames between the host and the nodes
type Bus interface {
	Send(ctx context.Context, f can.Frame) error
	Receive(ctx context.Context) (can.Frame, error)
	Close() error
}
