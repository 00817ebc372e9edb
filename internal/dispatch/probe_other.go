//go:build !linux

package dispatch

import "context"

func Probe(ctx context.Context) ([]UnitState, error) {
	_ = ctx
	return nil, newError(KindUnsupported, "probe", "systemd probing is linux only")
}
