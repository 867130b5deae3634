// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package wsi provides window system integration (WSI)
// for GPU drivers.
// The windowing harness owns the platform window; this
// package only defines what a driver needs from it: a
// surface size, resize notifications and, optionally,
// a sink for presented frames.
package wsi

import (
	"errors"
	"image"
	"sync"
)

// Window is the interface that defines a drawable window.
// The purpose of a window is to provide a surface into
// which a GPU can draw.
type Window interface {
	// Resize resizes the window.
	Resize(width, height int) error

	// SetTitle sets the window's title.
	SetTitle(title string) error

	// Close closes the window.
	Close()

	// Width returns the window's width.
	Width() int

	// Height returns the window's height.
	Height() int

	// Title returns the window's title.
	Title() string
}

// FrameSink is the interface that a Window may implement
// to receive presented images directly.
// Drivers that cannot hand images to a compositor call
// PresentFrame instead.
type FrameSink interface {
	PresentFrame(img *image.RGBA) error
}

// ErrClosed means that the window was closed.
var ErrClosed = errors.New("wsi: window closed")

// The maximum number of windows that can exist at any
// given time.
const MaxWindows = 16

// register adds win to createdWindows.
func register(win Window) error {
	mu.Lock()
	defer mu.Unlock()
	if windowCount >= MaxWindows {
		return errors.New("wsi: too many windows")
	}
	for i := range createdWindows {
		if createdWindows[i] == nil {
			createdWindows[i] = win
			windowCount++
			break
		}
	}
	return nil
}

// Windows returns all created windows.
// The returned value becomes out of date after calls to
// NewHeadless and Window.Close.
func Windows() []Window {
	mu.Lock()
	defer mu.Unlock()
	if windowCount == 0 {
		return nil
	}
	wins := make([]Window, 0, windowCount)
	for i := range createdWindows {
		if createdWindows[i] != nil {
			wins = append(wins, createdWindows[i])
		}
	}
	return wins
}

// closeWindow removes win from createdWindows and
// decrements windowCount.
// It must be called by implementations on win.Close.
// Note that win must be comparable.
func closeWindow(win Window) {
	mu.Lock()
	defer mu.Unlock()
	for i := range createdWindows {
		if createdWindows[i] == win {
			createdWindows[i] = nil
			windowCount--
			return
		}
	}
}

var (
	mu             sync.Mutex
	windowCount    int
	createdWindows [MaxWindows]Window
)

// WindowHandler is the interface that defines the methods
// for handling window events.
type WindowHandler interface {
	// WindowClose is called when a window is closed.
	WindowClose(win Window)

	// WindowResize is called when a window is resized.
	WindowResize(win Window, newWidth, newHeight int)
}

// SetWindowHandler sets the global WindowHandler.
func SetWindowHandler(wh WindowHandler) {
	mu.Lock()
	windowHandler = wh
	mu.Unlock()
}

// handler returns the current WindowHandler.
func handler() WindowHandler {
	mu.Lock()
	defer mu.Unlock()
	return windowHandler
}

var windowHandler WindowHandler

// Platform identifies an underlying platform used to
// implement wsi.
type Platform int

// Platforms.
const (
	// None means that there is no window system.
	None Platform = iota
	Android
	Wayland
	Win32
	XCB
	Cocoa
)

// String implements fmt.Stringer.
func (p Platform) String() string {
	switch p {
	case None:
		return "none"
	case Android:
		return "android"
	case Wayland:
		return "wayland"
	case Win32:
		return "win32"
	case XCB:
		return "xcb"
	case Cocoa:
		return "cocoa"
	}
	return "unknown"
}

// PlatformInUse identifies the platform that the harness
// declared with SetPlatform.
// Headless windows do not change it.
func PlatformInUse() Platform {
	mu.Lock()
	defer mu.Unlock()
	return platform
}

// SetPlatform records the platform that the windowing
// harness runs on. It is meant to be called once, at
// startup, before any swapchain is created.
func SetPlatform(p Platform) {
	mu.Lock()
	platform = p
	mu.Unlock()
}

var platform Platform
