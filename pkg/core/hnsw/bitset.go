package hnsw

// BitSet is a growable set of arena indices, used as the visited set of a
// layer search.
type BitSet struct {
	buckets []uint64
}

func NewBitSet(initialCapacity uint32) *BitSet {
	numBuckets := (initialCapacity >> 6) + 1 // >> 6 == / 64
	return &BitSet{
		buckets: make([]uint64, numBuckets),
	}
}

func (bs *BitSet) grow(n uint32) {
	neededBuckets := (n >> 6) + 1
	if uint32(len(bs.buckets)) < neededBuckets {
		newBuckets := make([]uint64, neededBuckets)
		copy(newBuckets, bs.buckets)
		bs.buckets = newBuckets
	}
}

func (bs *BitSet) Add(n uint32) {
	bucketIndex := n >> 6
	if bucketIndex >= uint32(len(bs.buckets)) {
		bs.grow(n)
	}
	// n & 63 == n % 64
	bs.buckets[bucketIndex] |= 1 << (n & 63)
}

func (bs *BitSet) Has(n uint32) bool {
	bucketIndex := n >> 6
	if bucketIndex >= uint32(len(bs.buckets)) {
		return false
	}
	return bs.buckets[bucketIndex]&(1<<(n&63)) != 0
}

func (bs *BitSet) Clear() {
	for i := range bs.buckets {
		bs.buckets[i] = 0
	}
}

func (bs *BitSet) EnsureCapacity(maxVal uint32) {
	if uint32(len(bs.buckets)) < (maxVal>>6)+1 {
		bs.grow(maxVal)
	}
}
