package crud

import "sync"

// Widget is a dashboard block.
type Widget struct {
	Type    string         `json:"type"`
	Name    string         `json:"name"`
	Content map[string]any `json:"content,omitempty"`
}

// Widgets is the ordered collection rendered on the dashboard.
type Widgets struct {
	mu    sync.RWMutex
	items []Widget
}

// NewWidgets creates an empty collection.
func NewWidgets() *Widgets {
	return &Widgets{}
}

// Add appends w, replacing an existing widget with the same name.
func (w *Widgets) Add(widget Widget) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if widget.Name != "" {
		for i, existing := range w.items {
			if existing.Name == widget.Name {
				w.items[i] = widget
				return
			}
		}
	}
	w.items = append(w.items, widget)
}

// Remove drops the named widget.
func (w *Widgets) Remove(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.items {
		if existing.Name == name {
			w.items = append(w.items[:i], w.items[i+1:]...)
			return
		}
	}
}

// All returns a copy of the widgets in insertion order.
func (w *Widgets) All() []Widget {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Widget(nil), w.items...)
}

// Where returns the widgets of the given type.
func (w *Widgets) Where(typ string) []Widget {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []Widget
	for _, item := range w.items {
		if item.Type == typ {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the number of widgets.
func (w *Widgets) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.items)
}

// Clear removes every widget.
func (w *Widgets) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = nil
}
