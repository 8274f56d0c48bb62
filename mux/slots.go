package mux

import "math/bits"

// MaxSlots is the number of ids of one kind on a connection, ids are one byte
const MaxSlots = 256

// slots is a bitmap of allocated ids
type slots struct {
	used [MaxSlots / 64]uint64
}

// acquire allocates the lowest free id
func (s *slots) acquire() (uint8, bool) {
	for i, word := range s.used {
		if word == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^word)
		s.used[i] |= 1 << bit
		return uint8(i*64 + bit), true
	}
	return 0, false
}

// release frees id and reports if it was allocated
func (s *slots) release(id uint8) bool {
	word, mask := id/64, uint64(1)<<(id%64)
	if s.used[word]&mask == 0 {
		return false
	}
	s.used[word] &^= mask
	return true
}

func (s *slots) reset() {
	s.used = [MaxSlots / 64]uint64{}
}

// multiMap indexes many values under a key
type multiMap[K comparable, V comparable] map[K]map[V]struct{}

func (m multiMap[K, V]) add(k K, v V) {
	set, ok := m[k]
	if !ok {
		set = map[V]struct{}{}
		m[k] = set
	}
	set[v] = struct{}{}
}

func (m multiMap[K, V]) remove(k K, v V) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}

func (m multiMap[K, V]) values(k K) []V {
	res := make([]V, 0, len(m[k]))
	for v := range m[k] {
		res = append(res, v)
	}
	return res
}
