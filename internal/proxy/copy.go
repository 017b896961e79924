package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

type closeWriter interface {
	CloseWrite() error
}

// CopyBidirectional relays between left and right until both directions end
// or ctx is canceled, then closes both. EOF in one direction is propagated as
// a half-close where the destination supports it.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	half := func(dst, src net.Conn) func() error {
		return func() error {
			buf := getRelayBuffer()
			_, err := io.CopyBuffer(dst, src, *buf)
			putRelayBuffer(buf)
			if err != nil {
				closeBoth()
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				return err
			}
			if cw, ok := dst.(closeWriter); ok {
				_ = cw.CloseWrite()
				return nil
			}
			closeBoth()
			return nil
		}
	}
	g.Go(half(left, right))
	g.Go(half(right, left))

	// gctx is canceled by the parent or once Wait returns.
	go func() {
		<-gctx.Done()
		closeBoth()
	}()

	return g.Wait()
}
