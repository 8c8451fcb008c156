package matching

import "gopherdex.com/pkg/xerr"

// Slab 固定长度的节点池，空闲节点用 Next 串成单链表
// 不做任何堆分配，拷贝整个结构体就是一份完整快照
type Slab struct {
	Nodes    [Capacity]Node `json:"nodes"`
	FreeHead uint32         `json:"freeHead"`
	Count    uint32         `json:"count"`
}

// Init 所有节点串进空闲链表：0 -> 1 -> ... -> 63 -> Sentinel
func (s *Slab) Init() {
	for i := range s.Nodes {
		next := uint32(i + 1)
		if i == Capacity-1 {
			next = Sentinel
		}
		s.Nodes[i] = Node{Next: next, Prev: Sentinel, Tag: TagFree}
	}
	s.FreeHead = 0
	s.Count = 0
}

// Alloc 弹出空闲链表头
func (s *Slab) Alloc() (uint32, error) {
	idx := s.FreeHead
	if idx == Sentinel {
		return Sentinel, xerr.ErrOrderBookFull
	}
	n := &s.Nodes[idx]
	s.FreeHead = n.Next
	n.Tag = TagOrder
	n.Next = Sentinel
	n.Prev = Sentinel
	n.Order = Order{}
	s.Count++
	return idx, nil
}

// Free 归还节点；调用方必须先把它从活跃链表里摘掉
func (s *Slab) Free(idx uint32) error {
	if idx >= Capacity || s.Nodes[idx].Tag != TagOrder {
		return xerr.ErrNodeNotFound
	}
	s.Nodes[idx] = Node{Next: s.FreeHead, Prev: Sentinel, Tag: TagFree}
	s.FreeHead = idx
	s.Count--
	return nil
}

// At 只返回活跃节点
func (s *Slab) At(idx uint32) (*Node, error) {
	if idx >= Capacity || s.Nodes[idx].Tag != TagOrder {
		return nil, xerr.ErrNodeNotFound
	}
	return &s.Nodes[idx], nil
}

func (s *Slab) Full() bool { return s.FreeHead == Sentinel }

// freeList 遍历空闲链表，最多走 Capacity 步，防止坏数据死循环
func (s *Slab) freeList() ([]uint32, bool) {
	out := make([]uint32, 0, Capacity)
	for idx := s.FreeHead; idx != Sentinel; idx = s.Nodes[idx].Next {
		if idx >= Capacity || len(out) > Capacity {
			return out, false
		}
		out = append(out, idx)
	}
	return out, true
}
