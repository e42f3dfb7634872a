package cache

import "iter"

// listNode is a node in entryList; Value is exported so that callers holding a node can update it in place.
type listNode[V any] struct {
	next  *listNode[V]
	prev  *listNode[V]
	Value V
}

// entryList is a doubly linked list that keeps cache entries in insertion order. Nodes can be removed in O(1) given
// the node, which is what the cache key index stores.
type entryList[V any] struct {
	head *listNode[V]
	tail *listNode[V]
	size int
}

// Len returns the number of elements in the list.
func (l *entryList[V]) Len() int {
	return l.size
}

// PushBack appends v as the newest node of the list.
func (l *entryList[V]) PushBack(v V) *listNode[V] {
	n := &listNode[V]{Value: v, prev: l.tail}
	if l.tail != nil {
		l.tail.next = n
	} else { // List was empty.
		l.head = n
	}
	l.tail = n
	l.size++
	return n
}

// Remove unlinks n from the list. n must belong to l.
func (l *entryList[V]) Remove(n *listNode[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else { // Node is the head.
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else { // Node is the tail.
		l.tail = n.prev
	}
	n.next = nil
	n.prev = nil
	l.size--
}

// All yields the nodes from the oldest to the newest. The list must not be modified while iterating.
func (l *entryList[V]) All() iter.Seq[*listNode[V]] {
	return func(yield func(*listNode[V]) bool) {
		for n := l.head; n != nil; n = n.next {
			if !yield(n) {
				return
			}
		}
	}
}
