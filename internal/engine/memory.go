package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

// Memory is an in-process Engine that records what was built instead of
// running media. It backs dry runs and tests; batches are fed through
// Push and terminal events through Post or SendEOS.
type Memory struct {
	mu       sync.Mutex
	elements map[string]*MemoryElement
	order    []string
	links    []MemoryLink
	slots    map[string]*memorySlot
	probes   map[string][]ProbeFunc
	playing  bool
	stopped  int
	events   chan Event

	// Factories restricts CreateElement to the listed factories when non-nil.
	Factories map[string]bool
	// FailLink makes Link/LinkSlot refuse the named downstream element.
	FailLink string
}

// MemoryLink is one recorded link, upstream → downstream[.slot].
type MemoryLink struct {
	Up   string
	Down string
	Slot string
}

// NewMemory returns an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{
		elements: make(map[string]*MemoryElement),
		slots:    make(map[string]*memorySlot),
		probes:   make(map[string][]ProbeFunc),
		events:   make(chan Event, 8),
	}
}

// MemoryElement is an element of the in-memory engine.
type MemoryElement struct {
	mu      sync.Mutex
	name    string
	factory string
	props   map[string]any
}

func (e *MemoryElement) Name() string    { return e.name }
func (e *MemoryElement) Factory() string { return e.factory }

func (e *MemoryElement) SetProperty(key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[key] = value
	return nil
}

// Property returns a property previously set on the element.
func (e *MemoryElement) Property(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[key]
	return v, ok
}

type memorySlot struct {
	name  string
	owner *MemoryElement
}

func (s *memorySlot) Name() string     { return s.name }
func (s *memorySlot) Owner() Element   { return s.owner }
func (s *memorySlot) key() string      { return s.owner.name + "." + s.name }

func (m *Memory) CreateElement(factory, name string) (Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Factories != nil && !m.Factories[factory] {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchFactory, factory)
	}
	if name == "" {
		name = fmt.Sprintf("%s%d", factory, len(m.order))
	}
	if _, exists := m.elements[name]; exists {
		return nil, fmt.Errorf("engine: element name %q already in use", name)
	}

	el := &MemoryElement{name: name, factory: factory, props: make(map[string]any)}
	m.elements[name] = el
	m.order = append(m.order, name)
	return el, nil
}

func (m *Memory) Link(up, down Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.owned(up, down); err != nil {
		return err
	}
	if down.Name() == m.FailLink {
		return fmt.Errorf("%w: %s → %s", ErrLinkRefused, up.Name(), down.Name())
	}
	m.links = append(m.links, MemoryLink{Up: up.Name(), Down: down.Name()})
	return nil
}

func (m *Memory) RequestSlot(junction Element, name string) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.owned(junction); err != nil {
		return nil, err
	}
	s := &memorySlot{name: name, owner: m.elements[junction.Name()]}
	if _, taken := m.slots[s.key()]; taken {
		return nil, fmt.Errorf("%w: %s already requested", ErrSlotRefused, s.key())
	}
	m.slots[s.key()] = s
	return s, nil
}

func (m *Memory) ReleaseSlot(slot Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := slot.(*memorySlot)
	if !ok {
		return fmt.Errorf("engine: foreign slot %T", slot)
	}
	delete(m.slots, s.key())
	return nil
}

func (m *Memory) LinkSlot(up Element, slot Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := slot.(*memorySlot)
	if !ok {
		return fmt.Errorf("engine: foreign slot %T", slot)
	}
	if _, live := m.slots[s.key()]; !live {
		return fmt.Errorf("%w: slot %s was released", ErrLinkRefused, s.key())
	}
	if err := m.owned(up); err != nil {
		return err
	}
	if s.owner.name == m.FailLink {
		return fmt.Errorf("%w: %s → %s", ErrLinkRefused, up.Name(), s.key())
	}
	m.links = append(m.links, MemoryLink{Up: up.Name(), Down: s.owner.name, Slot: s.name})
	return nil
}

func (m *Memory) AddProbe(el Element, pad string, fn ProbeFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.owned(el); err != nil {
		return err
	}
	m.probes[el.Name()] = append(m.probes[el.Name()], fn)
	return nil
}

func (m *Memory) Remove(el Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.owned(el); err != nil {
		return err
	}
	name := el.Name()
	delete(m.elements, name)
	delete(m.probes, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	kept := m.links[:0]
	for _, l := range m.links {
		if l.Up != name && l.Down != name {
			kept = append(kept, l)
		}
	}
	m.links = kept
	for k, s := range m.slots {
		if s.owner.name == name {
			delete(m.slots, k)
		}
	}
	return nil
}

func (m *Memory) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = true
	return nil
}

func (m *Memory) SendEOS() error {
	m.mu.Lock()
	playing := m.playing
	m.mu.Unlock()

	if !playing {
		return ErrNotPlaying
	}
	m.Post(Event{Kind: EventEOS})
	return nil
}

// Post queues a bus event. It never blocks; events beyond the queue depth
// are dropped, as only the first terminal event matters.
func (m *Memory) Post(ev Event) {
	select {
	case m.events <- ev:
	default:
	}
}

func (m *Memory) Next(ctx context.Context) (Event, error) {
	select {
	case ev := <-m.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (m *Memory) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.stopped++
	return nil
}

// Push runs every probe installed on element with batch, on the calling
// goroutine, the way a streaming thread would.
func (m *Memory) Push(element string, batch *meta.Batch) {
	m.mu.Lock()
	probes := append([]ProbeFunc(nil), m.probes[element]...)
	m.mu.Unlock()

	for _, fn := range probes {
		fn(batch)
	}
}

// Element returns a live element by name.
func (m *Memory) Element(name string) (*MemoryElement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.elements[name]
	return el, ok
}

// Elements returns live element names in creation order.
func (m *Memory) Elements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Links returns the recorded links.
func (m *Memory) Links() []MemoryLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MemoryLink(nil), m.links...)
}

// Slots returns the number of live requested slots.
func (m *Memory) Slots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Playing reports whether Start was called without a later Stop.
func (m *Memory) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// StopCount returns how many times Stop was called.
func (m *Memory) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Memory) owned(els ...Element) error {
	for _, el := range els {
		if el == nil {
			return fmt.Errorf("engine: nil element")
		}
		if cur, ok := m.elements[el.Name()]; !ok || Element(cur) != el {
			return fmt.Errorf("engine: element %q not in this pipeline", el.Name())
		}
	}
	return nil
}

var _ Engine = (*Memory)(nil)
