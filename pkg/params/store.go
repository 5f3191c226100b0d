package params

import (
	"sync"
)

// Reaction is invoked synchronously after a key's value is stored
type Reaction func(v any) error

// Getter computes a published value on demand
type Getter func() (any, error)

// Store is the parameter registry. It keeps the current value of every
// key, at most one reaction per key and the getters of published keys.
//
// The internal lock only guards the maps; it is never held while a
// reaction or getter runs, so reactions may call Set on other keys.
// Serializing writers is up to the caller.
type Store struct {
	mutex     sync.RWMutex
	values    map[Key]any
	reactions map[Key]Reaction
	getters   map[Key]Getter
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		values:    make(map[Key]any),
		reactions: make(map[Key]Reaction),
		getters:   make(map[Key]Getter),
	}
}

// Get returns the current value of key. Published keys are computed
// fresh on every call.
func (s *Store) Get(key Key) (any, error) {
	if _, ok := decls[key]; !ok {
		return nil, &UnknownKeyError{Key: key}
	}

	s.mutex.RLock()
	getter := s.getters[key]
	v, stored := s.values[key]
	s.mutex.RUnlock()

	if getter != nil {
		return getter()
	}
	if !stored {
		return nil, &UnknownKeyError{Key: key}
	}
	return v, nil
}

// Stored returns the last value written to key, ignoring any getter
func (s *Store) Stored(key Key) (any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Float returns the value of a numeric key. ok is false when the key
// holds nil.
func (s *Store) Float(key Key) (v float64, ok bool, err error) {
	raw, err := s.Get(key)
	if err != nil {
		return 0, false, err
	}
	switch x := raw.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case int:
		return float64(x), true, nil
	default:
		return 0, false, &TypeError{Key: key, Want: KindFloat, Value: raw}
	}
}

// Range returns the value of a range key
func (s *Store) Range(key Key) (Range, error) {
	raw, err := s.Get(key)
	if err != nil {
		return Range{}, err
	}
	b, ok := raw.(Bounded)
	if !ok {
		return Range{}, &TypeError{Key: key, Want: KindRange, Value: raw}
	}
	return RangeOf(b), nil
}

// Set stores v under key and then runs the key's reaction, if any.
// Writing the current value again still runs the reaction.
func (s *Store) Set(key Key, v any) error {
	d, ok := decls[key]
	if !ok {
		return &UnknownKeyError{Key: key}
	}
	if d.ReadOnly() {
		return &ReadOnlyKeyError{Key: key}
	}

	nv, err := normalize(key, d, v)
	if err != nil {
		return err
	}

	if d.Strict && nv != nil {
		if err := s.checkBounds(key, d, nv); err != nil {
			return err
		}
	}

	s.mutex.Lock()
	s.values[key] = nv
	reaction := s.reactions[key]
	s.mutex.Unlock()

	if reaction == nil {
		return nil
	}
	return reaction(nv)
}

// Restore puts back a previous value of key without running its
// reaction. With had false the key is left without a value.
func (s *Store) Restore(key Key, v any, had bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if had {
		s.values[key] = v
	} else {
		delete(s.values, key)
	}
}

// Reapply runs the reaction of key again with its stored value
func (s *Store) Reapply(key Key) error {
	v, ok := s.Stored(key)
	if !ok {
		return &UnknownKeyError{Key: key}
	}
	return s.Set(key, v)
}

func (s *Store) checkBounds(key Key, d Decl, v any) error {
	f, ok := v.(float64)
	if !ok || d.RangeKey == "" {
		return nil
	}
	r, err := s.Range(d.RangeKey)
	if err != nil {
		return err
	}
	if !r.Contains(f) {
		return &OutOfRangeError{Key: key, Value: f, Low: r.Low, High: r.High}
	}
	return nil
}

// Publish makes key computed. Range keys become read-only; writable keys
// keep their reaction but Get returns fn's result.
func (s *Store) Publish(key Key, fn Getter) error {
	if _, ok := decls[key]; !ok {
		return &UnknownKeyError{Key: key}
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.getters[key] = fn
	return nil
}

// Subscribe registers the reaction for key, replacing any previous one
func (s *Store) Subscribe(key Key, r Reaction) error {
	d, ok := decls[key]
	if !ok {
		return &UnknownKeyError{Key: key}
	}
	if d.ReadOnly() {
		return &ReadOnlyKeyError{Key: key}
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reactions[key] = r
	return nil
}

// Unsubscribe removes the reaction for key
func (s *Store) Unsubscribe(key Key) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.reactions, key)
}

// Keys returns the keys that currently have a value or getter
func (s *Store) Keys() []Key {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var keys []Key
	for _, k := range AllKeys() {
		_, stored := s.values[k]
		_, published := s.getters[k]
		if stored || published {
			keys = append(keys, k)
		}
	}
	return keys
}

// Snapshot reads every initialized key. Keys whose getter fails are
// omitted.
func (s *Store) Snapshot() map[Key]any {
	out := make(map[Key]any)
	for _, k := range s.Keys() {
		v, err := s.Get(k)
		if err != nil {
			continue
		}
		out[k] = v
	}
	return out
}
