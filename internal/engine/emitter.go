package engine

import "gopherdex.com/internal/dex"

func cmdEndEvent() dex.Event { return dex.Event{Type: EvCmdEnd} }

// outboxEmitter 把一条命令的事件写进 outbox，同时攒一份给同步调用方
type outboxEmitter struct {
	out     Outbox
	seq     uint64
	req     uint64
	idx     uint16
	err     error
	collect []Event
}

func (e *outboxEmitter) next() uint16 { i := e.idx; e.idx++; return i }

func (e *outboxEmitter) setErr(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

func (e *outboxEmitter) Emit(ev dex.Event) {
	e.append(Event{Event: ev})
}

// reject 命令失败也写一条事件，下游能看到
func (e *outboxEmitter) reject(ev dex.Event, code uint32) {
	ev.Type = EvRejected
	e.append(Event{Event: ev, Code: code})
}

func (e *outboxEmitter) append(ev Event) {
	ev.Seq, ev.ReqID, ev.Idx = e.seq, e.req, e.next()
	e.collect = append(e.collect, ev)
	if e.out != nil {
		e.setErr(e.out.Append(ev))
	}
}
