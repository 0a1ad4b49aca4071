package fileutil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

const copyBufferSize = 64 * 1024

// CopyStream drains r into a freshly truncated dst through a buffered writer.
// The copy stops with ctx.Err() once ctx is done. dst is removed when the
// copy does not complete.
func CopyStream(ctx context.Context, dst string, r io.Reader) (written int64, err error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	w := bufio.NewWriterSize(out, copyBufferSize)
	written, err = io.CopyBuffer(w, &contextReader{ctx: ctx, r: r}, make([]byte, copyBufferSize))
	if err != nil {
		return written, err
	}
	if err = w.Flush(); err != nil {
		return written, fmt.Errorf("flush %s: %w", dst, err)
	}
	if err = out.Sync(); err != nil {
		return written, fmt.Errorf("sync %s: %w", dst, err)
	}
	if err = out.Close(); err != nil {
		return written, fmt.Errorf("close %s: %w", dst, err)
	}
	return written, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
