package term

// Index is a structural-equality map keyed by Term, bucketed by Hash().
// github.com/hashicorp/go-set/v3's HashSet buckets by hash but falls
// back to Go's == for final equality, which for an interface holding
// pointer-shaped term nodes is pointer identity, not the structural
// equality spec.md §3 requires ("structural sharing is expected but not
// required"). Index hand-rolls the same bucket-then-compare shape (as
// seen in other_examples/cottand-ile__constrain.go's Hash()-keyed cache)
// using Term.Compare for the fallback instead of ==.
type Index[V any] struct {
	buckets map[uint64][]indexEntry[V]
}

type indexEntry[V any] struct {
	key Term
	val V
}

func NewIndex[V any]() *Index[V] {
	return &Index[V]{buckets: make(map[uint64][]indexEntry[V])}
}

func (x *Index[V]) Get(key Term) (V, bool) {
	for _, e := range x.buckets[key.Hash()] {
		if Equal(e.key, key) {
			return e.val, true
		}
	}

	var zero V

	return zero, false
}

func (x *Index[V]) Set(key Term, val V) {
	h := key.Hash()

	for i, e := range x.buckets[h] {
		if Equal(e.key, key) {
			x.buckets[h][i].val = val
			return
		}
	}

	x.buckets[h] = append(x.buckets[h], indexEntry[V]{key: key, val: val})
}

func (x *Index[V]) Delete(key Term) {
	h := key.Hash()
	bucket := x.buckets[h]

	for i, e := range bucket {
		if Equal(e.key, key) {
			x.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}
