//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// hostKeyMap maps desktop keys onto the device keys.
var hostKeyMap = []struct {
	key  ebiten.Key
	code KeyCode
}{
	{ebiten.KeySpace, KeyButton},
	{ebiten.KeyEnter, KeyButton},
	{ebiten.KeyP, KeyPower},
}

type hostKeyboard struct {
	ch chan KeyEvent
}

func newHostKeyboard() *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64)}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

func (k *hostKeyboard) emit(ev KeyEvent) {
	select {
	case k.ch <- ev:
	default:
	}
}

func (k *hostKeyboard) poll() {
	for _, m := range hostKeyMap {
		if inpututil.IsKeyJustPressed(m.key) {
			k.emit(KeyEvent{Code: m.code, Press: true})
		}
		if inpututil.IsKeyJustReleased(m.key) {
			k.emit(KeyEvent{Code: m.code, Press: false})
		}
	}
}

// hostTouch reports the left mouse button as a single touch contact.
type hostTouch struct {
	ch chan TouchEvent
}

func newHostTouch() *hostTouch {
	return &hostTouch{ch: make(chan TouchEvent, 64)}
}

func (t *hostTouch) Events() <-chan TouchEvent { return t.ch }

func (t *hostTouch) poll() {
	press := inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft)
	release := inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft)
	if !press && !release {
		return
	}
	x, y := ebiten.CursorPosition()
	select {
	case t.ch <- TouchEvent{X: int16(x), Y: int16(y), Press: press}:
	default:
	}
}
