package cache

// LRU is a fixed capacity least-recently-used cache. It is not safe for
// concurrent use; callers guard it with their own lock.
type LRU[K comparable, V any] struct {
	capacity int
	cache    map[K]*lruNode[K, V]

	// sentinels: left.next is the least recently used entry,
	// right.prev the most recently used one
	left  *lruNode[K, V]
	right *lruNode[K, V]
}

type lruNode[K comparable, V any] struct {
	key K
	val V

	prev *lruNode[K, V]
	next *lruNode[K, V]
}

func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}

	left, right := &lruNode[K, V]{}, &lruNode[K, V]{}
	left.next = right
	right.prev = left

	return &LRU[K, V]{
		left:     left,
		right:    right,
		capacity: capacity,
		cache:    make(map[K]*lruNode[K, V]),
	}
}

func (l *LRU[K, V]) Put(key K, value V) {
	if node, exists := l.cache[key]; exists {
		l.deleteNode(node)
	}

	node := &lruNode[K, V]{key: key, val: value}
	l.cache[key] = node
	l.insertNode(node)

	if len(l.cache) > l.capacity {
		l.evict()
	}
}

func (l *LRU[K, V]) Get(key K) (V, bool) {
	node, exists := l.cache[key]
	if !exists {
		var zero V
		return zero, false
	}

	l.deleteNode(node)
	l.insertNode(node)

	return node.val, true
}

func (l *LRU[K, V]) Remove(key K) {
	node, exists := l.cache[key]
	if !exists {
		return
	}

	l.deleteNode(node)
	delete(l.cache, key)
}

func (l *LRU[K, V]) Len() int {
	return len(l.cache)
}

func (l *LRU[K, V]) evict() {
	lru := l.left.next
	l.deleteNode(lru)

	delete(l.cache, lru.key)
}

func (l *LRU[K, V]) insertNode(node *lruNode[K, V]) {
	prev, next := l.right.prev, l.right

	node.prev = prev
	node.next = next

	prev.next = node
	next.prev = node
}

func (l *LRU[K, V]) deleteNode(node *lruNode[K, V]) {
	prev, next := node.prev, node.next

	prev.next = next
	next.prev = prev
}
