package matching

import (
	"fmt"

	"gopherdex.com/pkg/xerr"
)

// Book 单边订单簿：在 Slab 上的双向链表，按价格-时间排序
// 买：价格降序；卖：价格升序；同价按 id 升序
type Book struct {
	Side Side   `json:"side"`
	Head uint32 `json:"head"`
	Tail uint32 `json:"tail"`
	Slab Slab   `json:"slab"`
}

func NewBook(side Side) *Book {
	b := &Book{}
	b.Init(side)
	return b
}

func (b *Book) Init(side Side) {
	b.Side = side
	b.Head = Sentinel
	b.Tail = Sentinel
	b.Slab.Init()
}

func (b *Book) Len() int     { return int(b.Slab.Count) }
func (b *Book) Empty() bool  { return b.Head == Sentinel }
func (b *Book) IsFull() bool { return b.Slab.Full() }

// Insert 分配节点后从头找插入位置，O(n)，n <= Capacity
func (b *Book) Insert(o Order) (uint32, error) {
	if o.ID == 0 || o.Quantity == 0 {
		return Sentinel, xerr.ErrInvalidOrderInput
	}
	idx, err := b.Slab.Alloc()
	if err != nil {
		return Sentinel, err
	}
	node := &b.Slab.Nodes[idx]
	node.Order = o

	// 找到第一个新单应排在它前面的节点
	cur := b.Head
	for cur != Sentinel {
		if before(b.Side, &o, &b.Slab.Nodes[cur].Order) {
			break
		}
		cur = b.Slab.Nodes[cur].Next
	}

	if cur == Sentinel {
		// 挂到尾部
		node.Prev = b.Tail
		if b.Tail != Sentinel {
			b.Slab.Nodes[b.Tail].Next = idx
		} else {
			b.Head = idx
		}
		b.Tail = idx
		return idx, nil
	}

	// 插到 cur 前面
	prev := b.Slab.Nodes[cur].Prev
	node.Next = cur
	node.Prev = prev
	b.Slab.Nodes[cur].Prev = idx
	if prev != Sentinel {
		b.Slab.Nodes[prev].Next = idx
	} else {
		b.Head = idx
	}
	return idx, nil
}

// Remove 摘链并归还节点
func (b *Book) Remove(id uint64) (Order, error) {
	idx := b.indexOf(id)
	if idx == Sentinel {
		return Order{}, xerr.ErrOrderNotFound
	}
	return b.RemoveAt(idx)
}

func (b *Book) RemoveAt(idx uint32) (Order, error) {
	node, err := b.Slab.At(idx)
	if err != nil {
		return Order{}, err
	}
	o := node.Order
	if node.Prev != Sentinel {
		b.Slab.Nodes[node.Prev].Next = node.Next
	} else {
		b.Head = node.Next
	}
	if node.Next != Sentinel {
		b.Slab.Nodes[node.Next].Prev = node.Prev
	} else {
		b.Tail = node.Prev
	}
	if err := b.Slab.Free(idx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Best 队头
func (b *Book) Best() (Order, bool) {
	if b.Head == Sentinel {
		return Order{}, false
	}
	return b.Slab.Nodes[b.Head].Order, true
}

// Shrink 部分成交：原地减少剩余数量，位置不变
func (b *Book) Shrink(id uint64, newQty uint64) error {
	idx := b.indexOf(id)
	if idx == Sentinel {
		return xerr.ErrOrderNotFound
	}
	node := &b.Slab.Nodes[idx]
	if newQty == 0 || newQty >= node.Order.Quantity {
		return xerr.ErrInvalidOrderInput
	}
	node.Order.Quantity = newQty
	return nil
}

func (b *Book) Find(id uint64) (Order, bool) {
	idx := b.indexOf(id)
	if idx == Sentinel {
		return Order{}, false
	}
	return b.Slab.Nodes[idx].Order, true
}

// Each 按链表顺序遍历，fn 返回 false 提前结束
func (b *Book) Each(fn func(idx uint32, o Order) bool) {
	steps := 0
	for cur := b.Head; cur != Sentinel && steps < Capacity; cur = b.Slab.Nodes[cur].Next {
		if !fn(cur, b.Slab.Nodes[cur].Order) {
			return
		}
		steps++
	}
}

func (b *Book) Orders() []Order {
	out := make([]Order, 0, b.Len())
	b.Each(func(_ uint32, o Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

func (b *Book) indexOf(id uint64) uint32 {
	found := Sentinel
	b.Each(func(idx uint32, o Order) bool {
		if o.ID == id {
			found = idx
			return false
		}
		return true
	})
	return found
}

// Validate 完整校验：排序、双向链接、计数、活跃/空闲两条链互斥且覆盖全部节点
func (b *Book) Validate() error {
	if !b.Side.Valid() {
		return fmt.Errorf("book: bad side %d", b.Side)
	}
	seen := make(map[uint32]bool, Capacity)

	var (
		prev  = Sentinel
		live  uint32
		cur   = b.Head
		prevO *Order
	)
	for cur != Sentinel {
		if cur >= Capacity {
			return fmt.Errorf("book: index %d out of range", cur)
		}
		if seen[cur] {
			return fmt.Errorf("book: cycle at %d", cur)
		}
		seen[cur] = true
		n := &b.Slab.Nodes[cur]
		if n.Tag != TagOrder {
			return fmt.Errorf("book: live node %d tagged %s", cur, n.Tag)
		}
		if n.Prev != prev {
			return fmt.Errorf("book: node %d prev=%d want %d", cur, n.Prev, prev)
		}
		if prevO != nil && !before(b.Side, prevO, &n.Order) {
			return fmt.Errorf("book: order %d out of sequence after %d", n.Order.ID, prevO.ID)
		}
		prevO = &n.Order
		prev = cur
		cur = n.Next
		live++
	}
	if b.Tail != prev {
		return fmt.Errorf("book: tail=%d want %d", b.Tail, prev)
	}
	if live != b.Slab.Count {
		return fmt.Errorf("book: count=%d live=%d", b.Slab.Count, live)
	}

	free, ok := b.Slab.freeList()
	if !ok {
		return fmt.Errorf("book: corrupt free list")
	}
	for _, idx := range free {
		if seen[idx] {
			return fmt.Errorf("book: node %d on both chains", idx)
		}
		if b.Slab.Nodes[idx].Tag != TagFree {
			return fmt.Errorf("book: free node %d tagged %s", idx, b.Slab.Nodes[idx].Tag)
		}
		seen[idx] = true
	}
	if len(seen) != Capacity {
		return fmt.Errorf("book: %d nodes unreachable", Capacity-len(seen))
	}
	return nil
}
