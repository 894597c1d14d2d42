package capture

import "time"

// workQueue is the FIFO of pending capture items. Retried items go to the
// back so every other pending URL is attempted before a failure comes around
// again.
type workQueue struct {
	items []Item
}

func newWorkQueue(urls []string, timeout time.Duration) *workQueue {
	q := &workQueue{items: make([]Item, 0, len(urls))}
	for i, u := range urls {
		q.items = append(q.items, Item{URL: u, Index: i, Timeout: timeout})
	}
	return q
}

func (q *workQueue) push(item Item) {
	q.items = append(q.items, item)
}

func (q *workQueue) pop() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *workQueue) len() int {
	return len(q.items)
}
