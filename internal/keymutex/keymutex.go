package keymutex

import "sync"

// Set — набор мьютексов по ключу заказа. Нужен там, где
// read-modify-write по одному заказу должен идти строго по очереди.
// Запись без держателей и ожидающих удаляется из набора.
type Set struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *Set {
	return &Set{locks: map[int64]*entry{}}
}

func (s *Set) Lock(key int64) {
	s.mu.Lock()
	e, ok := s.locks[key]
	if !ok {
		e = &entry{}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()
	e.mu.Lock()
}

func (s *Set) Unlock(key int64) {
	s.mu.Lock()
	e := s.locks[key]
	if e == nil {
		s.mu.Unlock()
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
	e.mu.Unlock()
}
