// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"errors"
	"image"
	"sync"
)

// Headless is a Window that has no on-screen representation.
// It implements FrameSink, keeping the most recently presented
// frame in memory.
type Headless struct {
	mu     sync.Mutex
	width  int
	height int
	title  string
	closed bool
	last   *image.RGBA
	count  int
}

// NewHeadless creates a new headless window.
func NewHeadless(width, height int, title string) (*Headless, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("wsi: invalid window size")
	}
	win := &Headless{
		width:  width,
		height: height,
		title:  title,
	}
	if err := register(win); err != nil {
		return nil, err
	}
	return win, nil
}

// Resize resizes the window.
func (w *Headless) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.New("wsi: invalid window size")
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	changed := w.width != width || w.height != height
	w.width, w.height = width, height
	w.mu.Unlock()
	if wh := handler(); changed && wh != nil {
		wh.WindowResize(w, width, height)
	}
	return nil
}

// SetTitle sets the window's title.
func (w *Headless) SetTitle(title string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.title = title
	return nil
}

// Close closes the window.
func (w *Headless) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	closeWindow(w)
	if wh := handler(); wh != nil {
		wh.WindowClose(w)
	}
}

// Width returns the window's width.
func (w *Headless) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

// Height returns the window's height.
func (w *Headless) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

// Title returns the window's title.
func (w *Headless) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}

// PresentFrame stores a copy of img as the last frame.
func (w *Headless) PresentFrame(img *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	cpy := image.NewRGBA(img.Rect)
	copy(cpy.Pix, img.Pix)
	w.last = cpy
	w.count++
	return nil
}

// LastFrame returns the most recently presented frame,
// or nil if nothing was presented yet.
func (w *Headless) LastFrame() *image.RGBA {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// FrameCount returns the number of presented frames.
func (w *Headless) FrameCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
