package util

import "sync"

type SignalHandler func(sender any, params ...any)

// Signals is a tiny synchronous publish/subscribe bus keyed by event name.
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

var sig = NewSignals()

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]SignalHandler)}
}

// Sig returns the process wide signal bus.
func Sig() *Signals {
	return sig
}

func (s *Signals) Connect(event string, handler SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

// Emit calls every handler of event in registration order.
func (s *Signals) Emit(event string, sender any, params ...any) {
	s.mu.RLock()
	handlers := append([]SignalHandler(nil), s.handlers[event]...)
	s.mu.RUnlock()
	for _, h := range handlers {
		h(sender, params...)
	}
}

// Clear 移除所有订阅（测试用）
func (s *Signals) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = make(map[string][]SignalHandler)
}
