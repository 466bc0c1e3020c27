//go:build !tinygo && cgo

package hal

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"firmcore/internal/buildinfo"
)

// RunWindow starts a desktop window that shows the framebuffer and forwards
// keyboard and mouse input as button and touch events. It blocks until the
// window closes or the kernel stops.
func RunWindow(ctx context.Context, kernel Kernel, cfg HostConfig) error {
	h := NewHost(cfg).(*hostHAL)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := &hostGame{h: h, ctx: ctx, done: make(chan struct{})}
	go func() {
		defer close(g.done)
		g.err = kernel(ctx, h)
	}()

	ebiten.SetWindowTitle("firmcore (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	err := ebiten.RunGame(g)
	h.power.stop()
	<-g.done
	switch {
	case h.power.rebootRequested():
		return ErrReboot
	case errors.Is(err, ebiten.Termination):
		return g.err
	case err != nil:
		return err
	}
	return g.err
}

type hostGame struct {
	h       *hostHAL
	ctx     context.Context
	done    chan struct{}
	err     error
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
}

func (g *hostGame) Update() error {
	select {
	case <-g.done:
		return ebiten.Termination
	case <-g.ctx.Done():
		return ebiten.Termination
	default:
	}
	g.h.kbd.poll()
	g.h.touch.poll()
	g.h.t.step(time.Now())
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshot(g.scratch)
	src, dst := g.scratch, g.img.Pix
	for i := 0; i+1 < len(src) && i*2+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := i * 2
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
