package matching

import "exchange/internal/schema"

// Order is a resting order. Owned by the book of its symbol.
type Order struct {
	ID     schema.OrderID
	UID    schema.UserID
	Side   schema.Side
	Price  schema.Price
	Size   schema.Size
	Filled schema.Size
	// Seq is the sequence number of the placing command and defines time
	// priority within a price level.
	Seq int64

	prev, next *Order
	level      *level
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() schema.Size {
	return o.Size - o.Filled
}

// level is a FIFO queue of orders at one price.
type level struct {
	price  schema.Price
	head   *Order
	tail   *Order
	volume schema.Size
	count  int
}

func (l *level) push(o *Order) {
	o.level = l
	o.prev = l.tail
	o.next = nil
	if l.tail != nil {
		l.tail.next = o
	} else {
		l.head = o
	}
	l.tail = o
	l.volume += o.Remaining()
	l.count++
}

func (l *level) remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	l.volume -= o.Remaining()
	l.count--
	o.prev, o.next, o.level = nil, nil, nil
}
