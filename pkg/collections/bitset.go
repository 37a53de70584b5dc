// Package collections provides data structures used by the graph traversals.
package collections

import "math/bits"

// Bitset is a memory-efficient boolean set keyed by node index.
// Traversals over arena-style snapshots use it for visited tracking:
// 1 bit per node instead of a map entry per node.
type Bitset struct {
	words []uint64
	size  int
}

// NewBitset creates a new bitset sized for the given number of elements.
func NewBitset(size int) *Bitset {
	if size <= 0 {
		size = 64
	}
	return &Bitset{
		words: make([]uint64, (size+63)/64),
		size:  size,
	}
}

// Set sets the bit at index i, growing the bitset if needed.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	word := i / 64
	if word >= len(b.words) {
		b.grow(i + 1)
	}
	b.words[word] |= 1 << (i % 64)
	if i >= b.size {
		b.size = i + 1
	}
}

// Clear clears the bit at index i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.words) {
		return
	}
	b.words[i/64] &^= 1 << (i % 64)
}

// Test returns true if the bit at index i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.words) {
		return false
	}
	return b.words[i/64]&(1<<(i%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	count := 0
	for _, w := range b.words {
		count += bits.OnesCount64(w)
	}
	return count
}

// Size returns the size of the bitset.
func (b *Bitset) Size() int {
	return b.size
}

// ClearAll clears every bit.
func (b *Bitset) ClearAll() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// Clone returns a copy of the bitset.
func (b *Bitset) Clone() *Bitset {
	words := make([]uint64, len(b.words))
	copy(words, b.words)
	return &Bitset{words: words, size: b.size}
}

// Equal reports whether two bitsets have the same set bits.
func (b *Bitset) Equal(other *Bitset) bool {
	if other == nil {
		return b.Count() == 0
	}
	longer, shorter := b.words, other.words
	if len(shorter) > len(longer) {
		longer, shorter = shorter, longer
	}
	for i, w := range shorter {
		if longer[i] != w {
			return false
		}
	}
	for _, w := range longer[len(shorter):] {
		if w != 0 {
			return false
		}
	}
	return true
}

// Iterate calls fn for each set bit index in ascending order.
// Iteration stops when fn returns false.
func (b *Bitset) Iterate(fn func(i int) bool) {
	for wordIdx, word := range b.words {
		if word == 0 {
			continue
		}
		base := wordIdx * 64
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			if !fn(base + tz) {
				return
			}
			word &= word - 1
		}
	}
}

// ToSlice returns all set bit indices in ascending order.
func (b *Bitset) ToSlice() []int {
	result := make([]int, 0, b.Count())
	b.Iterate(func(i int) bool {
		result = append(result, i)
		return true
	})
	return result
}

func (b *Bitset) grow(newSize int) {
	numWords := (newSize + 63) / 64
	if numWords <= len(b.words) {
		return
	}
	newCap := len(b.words) * 2
	if newCap < numWords {
		newCap = numWords
	}
	words := make([]uint64, newCap)
	copy(words, b.words)
	b.words = words
}

// VersionedBitset is a visited set that can be "cleared" in O(1) by
// bumping a version counter. Useful when the same snapshot is walked
// once per candidate node, as the detached-reachability pass does.
type VersionedBitset struct {
	versions []uint32
	current  uint32
	size     int
}

// NewVersionedBitset creates a versioned bitset for the given element count.
func NewVersionedBitset(size int) *VersionedBitset {
	if size <= 0 {
		size = 64
	}
	return &VersionedBitset{
		versions: make([]uint32, size),
		current:  1,
		size:     size,
	}
}

// Set marks index i as visited in the current epoch.
func (v *VersionedBitset) Set(i int) {
	if i < 0 {
		return
	}
	if i >= len(v.versions) {
		v.grow(i + 1)
	}
	v.versions[i] = v.current
}

// Test reports whether index i is visited in the current epoch.
func (v *VersionedBitset) Test(i int) bool {
	if i < 0 || i >= len(v.versions) {
		return false
	}
	return v.versions[i] == v.current
}

// TestAndSet marks index i visited and returns its previous state.
func (v *VersionedBitset) TestAndSet(i int) bool {
	if i < 0 {
		return false
	}
	if i >= len(v.versions) {
		v.grow(i + 1)
	}
	was := v.versions[i] == v.current
	v.versions[i] = v.current
	return was
}

// Reset starts a new epoch. On version counter wraparound the backing
// array is zeroed so stale marks cannot survive.
func (v *VersionedBitset) Reset() {
	v.current++
	if v.current == 0 {
		for i := range v.versions {
			v.versions[i] = 0
		}
		v.current = 1
	}
}

// Size returns the size of the bitset.
func (v *VersionedBitset) Size() int {
	return v.size
}

func (v *VersionedBitset) grow(newSize int) {
	if newSize <= len(v.versions) {
		return
	}
	newCap := len(v.versions) * 2
	if newCap < newSize {
		newCap = newSize
	}
	versions := make([]uint32, newCap)
	copy(versions, v.versions)
	v.versions = versions
	v.size = newSize
}
