package dex

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/segmentio/encoding/json"
	"gopherdex.com/internal/matching"
)

const snapshotVersion = 1

// snapshot 全量状态；订单簿连同 slab 原样保存，恢复后节点下标不变
type snapshot struct {
	Version    int           `json:"version"`
	Market     Market        `json:"market"`
	Bids       matching.Book `json:"bids"`
	Asks       matching.Book `json:"asks"`
	OpenOrders []OpenOrders  `json:"openOrders"`
}

func (p *Processor) Snapshot() ([]byte, error) {
	st, err := p.state()
	if err != nil {
		return nil, err
	}
	s := snapshot{
		Version:    snapshotVersion,
		Market:     st.Market,
		Bids:       st.Bids,
		Asks:       st.Asks,
		OpenOrders: make([]OpenOrders, 0, len(st.OpenOrders)),
	}
	for _, o := range st.OpenOrders {
		s.OpenOrders = append(s.OpenOrders, *o)
	}
	sort.Slice(s.OpenOrders, func(i, j int) bool {
		return s.OpenOrders[i].Address.String() < s.OpenOrders[j].Address.String()
	})
	return json.Marshal(&s)
}

// Restore 覆盖当前状态；订单簿结构或账户记录对不上都拒绝
func (p *Processor) Restore(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d not supported", s.Version)
	}
	if s.Bids.Side != matching.Bid || s.Asks.Side != matching.Ask {
		return fmt.Errorf("snapshot: book sides swapped")
	}
	if err := s.Bids.Validate(); err != nil {
		return fmt.Errorf("snapshot bids: %w", err)
	}
	if err := s.Asks.Validate(); err != nil {
		return fmt.Errorf("snapshot asks: %w", err)
	}

	st := &State{
		Market:     s.Market,
		Bids:       s.Bids,
		Asks:       s.Asks,
		OpenOrders: make(map[solana.PublicKey]*OpenOrders, len(s.OpenOrders)),
	}
	for i := range s.OpenOrders {
		o := s.OpenOrders[i]
		st.OpenOrders[o.Address] = &o
	}
	if err := st.checkAccounts(); err != nil {
		return err
	}
	p.st = st
	return nil
}

// checkAccounts 每个挂单都记在它 owner 的账户里，账户里的每个 id 也都在簿上
func (st *State) checkAccounts() error {
	live := 0
	for _, b := range []*matching.Book{&st.Bids, &st.Asks} {
		var err error
		b.Each(func(_ uint32, o matching.Order) bool {
			oo, ok := st.OpenOrders[o.Owner]
			if !ok || !oo.HasOrder(o.ID) {
				err = fmt.Errorf("order %d not recorded for %s", o.ID, o.Owner)
				return false
			}
			if o.ID > st.Market.OrderSequenceNumber {
				err = fmt.Errorf("order %d beyond sequence %d", o.ID, st.Market.OrderSequenceNumber)
				return false
			}
			live++
			return true
		})
		if err != nil {
			return err
		}
	}
	recorded := 0
	for _, oo := range st.OpenOrders {
		recorded += oo.OrderCount()
	}
	if recorded != live {
		return fmt.Errorf("open orders record %d ids, books hold %d", recorded, live)
	}
	return nil
}
