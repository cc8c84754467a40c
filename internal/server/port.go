package server

import "fmt"

// Port is a TCP port in the range 1-65535.
type Port int

const (
	minPort = 1
	maxPort = 65535
)

// NewPort validates n.
func NewPort(n int) (Port, error) {
	if n < minPort || n > maxPort {
		return 0, fmt.Errorf("%w: %d is outside %d-%d", ErrInvalidPort, n, minPort, maxPort)
	}
	return Port(n), nil
}

func (p Port) Int() int { return int(p) }
