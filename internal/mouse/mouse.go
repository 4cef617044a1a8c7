// Package mouse maps terminal mouse events onto named screen regions.
package mouse

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DoubleClickWindow is the longest gap between two clicks on the same
// region that still counts as a double click.
const DoubleClickWindow = 400 * time.Millisecond

// Rect represents a rectangular region.
type Rect struct {
	X, Y, W, H int
}

// Contains returns true if the point (x, y) is within the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Region is a named rectangular hit region with associated data.
type Region struct {
	ID   string
	Rect Rect
	Data any
}

// HitMap tracks hit regions for the last rendered frame.
type HitMap struct {
	regions []Region
}

// NewHitMap creates a new empty HitMap.
func NewHitMap() *HitMap {
	return &HitMap{regions: make([]Region, 0, 32)}
}

// Clear removes all regions from the hit map.
func (h *HitMap) Clear() {
	h.regions = h.regions[:0]
}

// Add adds a new region to the hit map.
func (h *HitMap) Add(id string, rect Rect, data any) {
	h.regions = append(h.regions, Region{ID: id, Rect: rect, Data: data})
}

// AddRect adds a region using individual coordinates.
func (h *HitMap) AddRect(id string, x, y, w, height int, data any) {
	h.Add(id, Rect{X: x, Y: y, W: w, H: height}, data)
}

// Test returns the topmost region containing the point, or nil.
func (h *HitMap) Test(x, y int) *Region {
	for i := len(h.regions) - 1; i >= 0; i-- {
		if h.regions[i].Rect.Contains(x, y) {
			return &h.regions[i]
		}
	}
	return nil
}

// Regions returns a copy of all registered regions.
func (h *HitMap) Regions() []Region {
	return append([]Region(nil), h.regions...)
}

// ActionType represents the type of mouse action detected.
type ActionType int

const (
	ActionNone ActionType = iota
	ActionClick
	ActionDoubleClick
	ActionScrollUp
	ActionScrollDown
)

// Action is a processed mouse event.
type Action struct {
	Type   ActionType
	Region *Region
	X, Y   int
	Delta  int // scroll rows, negative is up
}

// Handler combines a HitMap with click timing for double-click detection.
type Handler struct {
	HitMap *HitMap

	// Now is the clock used for double-click timing.
	Now func() time.Time

	lastClickTime   time.Time
	lastClickRegion string
	lastClickData   any
}

// NewHandler creates a new mouse handler.
func NewHandler() *Handler {
	return &Handler{HitMap: NewHitMap(), Now: time.Now}
}

// Clear drops the regions of the previous frame.
func (h *Handler) Clear() {
	h.HitMap.Clear()
}

// HandleMouse turns a tea.MouseMsg into an Action against the hit map.
func (h *Handler) HandleMouse(msg tea.MouseMsg) Action {
	if msg.Action != tea.MouseActionPress {
		return Action{Type: ActionNone}
	}

	switch msg.Button {
	case tea.MouseButtonLeft:
		region := h.HitMap.Test(msg.X, msg.Y)
		if region == nil {
			return Action{Type: ActionNone}
		}
		typ := ActionClick
		if h.isDoubleClick(region) {
			typ = ActionDoubleClick
		}
		return Action{Type: typ, Region: region, X: msg.X, Y: msg.Y}

	case tea.MouseButtonWheelUp:
		return Action{Type: ActionScrollUp, Region: h.HitMap.Test(msg.X, msg.Y), X: msg.X, Y: msg.Y, Delta: -3}

	case tea.MouseButtonWheelDown:
		return Action{Type: ActionScrollDown, Region: h.HitMap.Test(msg.X, msg.Y), X: msg.X, Y: msg.Y, Delta: 3}
	}
	return Action{Type: ActionNone}
}

// isDoubleClick records the click and reports whether it completes a
// double click on the same region and data.
func (h *Handler) isDoubleClick(region *Region) bool {
	now := h.Now()
	if region.ID == h.lastClickRegion && region.Data == h.lastClickData &&
		now.Sub(h.lastClickTime) < DoubleClickWindow {
		// reset so a third click starts over
		h.lastClickRegion = ""
		h.lastClickData = nil
		h.lastClickTime = time.Time{}
		return true
	}
	h.lastClickRegion = region.ID
	h.lastClickData = region.Data
	h.lastClickTime = now
	return false
}
