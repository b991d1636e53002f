// Package input translates SDL2 events into engine events.
package input

import "github.com/veandco/go-sdl2/sdl"

// EventType identifies the kind of input event.
type EventType int

const (
	EventQuit EventType = iota
	EventResize
	EventKeyDown
	EventMouseDown
	EventMouseUp
	EventMouseMotion
	EventMouseWheel
)

// Mouse button identifiers.
const (
	ButtonLeft   = 1
	ButtonMiddle = 2
	ButtonRight  = 3
)

// Event is a single translated input event.
type Event struct {
	Type   EventType
	Key    sdl.Keycode // EventKeyDown
	Width  int         // EventResize
	Height int         // EventResize
	Button int         // EventMouseDown, EventMouseUp
	X, Y   int         // mouse position in window coordinates
	DX, DY int         // EventMouseMotion relative motion, EventMouseWheel scroll
}

// Handler polls SDL and tracks held mouse buttons so motion events carry
// drag state.
type Handler struct {
	held [4]bool
}

// NewHandler creates an input handler.
func NewHandler() *Handler {
	return &Handler{}
}

// ButtonHeld reports whether the given mouse button is currently pressed.
func (h *Handler) ButtonHeld(button int) bool {
	if button < 1 || button >= len(h.held) {
		return false
	}
	return h.held[button]
}

// Poll drains the SDL event queue and returns the translated events.
func (h *Handler) Poll() []Event {
	var events []Event

	for sdlEvent := sdl.PollEvent(); sdlEvent != nil; sdlEvent = sdl.PollEvent() {
		switch e := sdlEvent.(type) {
		case *sdl.QuitEvent:
			events = append(events, Event{Type: EventQuit})

		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				events = append(events, Event{
					Type:   EventResize,
					Width:  int(e.Data1),
					Height: int(e.Data2),
				})
			}

		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && e.Repeat == 0 {
				events = append(events, Event{
					Type: EventKeyDown,
					Key:  e.Keysym.Sym,
				})
			}

		case *sdl.MouseButtonEvent:
			button := int(e.Button)
			if button >= 1 && button < len(h.held) {
				h.held[button] = e.Type == sdl.MOUSEBUTTONDOWN
			}
			typ := EventMouseUp
			if e.Type == sdl.MOUSEBUTTONDOWN {
				typ = EventMouseDown
			}
			events = append(events, Event{
				Type:   typ,
				Button: button,
				X:      int(e.X),
				Y:      int(e.Y),
			})

		case *sdl.MouseMotionEvent:
			events = append(events, Event{
				Type: EventMouseMotion,
				X:    int(e.X),
				Y:    int(e.Y),
				DX:   int(e.XRel),
				DY:   int(e.YRel),
			})

		case *sdl.MouseWheelEvent:
			events = append(events, Event{
				Type: EventMouseWheel,
				DY:   int(e.Y),
			})
		}
	}

	return events
}
