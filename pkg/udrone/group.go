package udrone

import (
	"sort"
	"sync"
	"time"
)

// GroupState is the per-Group lifecycle state described in the package
// design: Empty -> Engaging -> Active -> Resetting -> Empty.
type GroupState int

const (
	StateEmpty GroupState = iota
	StateEngaging
	StateActive
	StateResetting
)

func (s GroupState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateEngaging:
		return "engaging"
	case StateActive:
		return "active"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Group is a named, host-scoped collection of drones bound to cooperative
// command delivery. Members, seq and state are only ever mutated while the
// owning Host's mutex is held.
type Group struct {
	host *Host
	id   string

	idleInterval time.Duration
	timerMu      sync.Mutex
	timer        *time.Timer

	seq     uint32
	members map[string]struct{}
	state   GroupState
}

func newGroup(host *Host, id string) *Group {
	g := &Group{
		host:         host,
		id:           id,
		idleInterval: IdleInterval,
		members:      make(map[string]struct{}),
		seq:          host.GenSeq(),
		state:        StateEmpty,
	}
	g.rearmTimer()
	return g
}

// ID returns this group's full wire id (prefix + host-id suffix).
func (g *Group) ID() string { return g.id }

// State returns the group's current lifecycle state.
func (g *Group) State() GroupState {
	var s GroupState
	g.host.withLock(func() { s = g.state })
	return s
}

// Members returns a sorted snapshot of the group's current membership.
func (g *Group) Members() []string {
	var out []string
	g.host.withLock(func() {
		out = make([]string, 0, len(g.members))
		for id := range g.members {
			out = append(out, id)
		}
	})
	sort.Strings(out)
	return out
}

func (g *Group) isMember(id string) bool {
	var ok bool
	g.host.withLock(func() {
		_, ok = g.members[id]
	})
	return ok
}

func (g *Group) rearmTimer() {
	g.timerMu.Lock()
	defer g.timerMu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.idleInterval, g.onIdleFire)
}

func (g *Group) cancelTimer() {
	g.timerMu.Lock()
	defer g.timerMu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// onIdleFire is the keep-alive timer callback. It runs on its own goroutine
// and must serialize with foreground request/call flows through the host
// mutex; its !whois ping draws a fresh sequence so a concurrent request's
// sequence-filtered recv simply discards its replies.
func (g *Group) onIdleFire() {
	var nonEmpty bool
	g.host.withLock(func() { nonEmpty = len(g.members) > 0 })
	if nonEmpty {
		g.host.log.Debug().Str("group", g.id).Msg("keep-alive ping")
		_, _ = g.host.Whois(g.id, 0, nil, nil)
	}
	g.rearmTimer()
}

// Assign acquires between min and max members by discovering idle drones
// and engaging them. If max==0, Assign is a no-op and returns an empty
// list without error. A shortfall after one extra discovery round rolls
// back any drones that did engage and returns DroneNotFoundError.
func (g *Group) Assign(max, min int, board any) ([]string, error) {
	if max == 0 {
		return []string{}, nil
	}
	if min <= 0 {
		min = max
	}

	g.host.withLock(func() {
		if g.state == StateEmpty {
			g.state = StateEngaging
		}
	})

	avail, err := g.host.Whois(DefaultGroupID, max, nil, board)
	if err != nil {
		return nil, err
	}
	if len(avail) > max {
		avail = avail[:max]
	}
	if len(avail) < min {
		g.host.withLock(func() { g.state = StateEmpty })
		return nil, errDroneNotFound("you must construct additional drones")
	}

	newMembers, err := g.engage(avail)
	if err != nil {
		return nil, err
	}

	if len(newMembers) < min {
		shortfall := max - len(newMembers)
		more, werr := g.host.Whois(DefaultGroupID, shortfall, nil, nil)
		if werr == nil {
			if len(more) > shortfall {
				more = more[:shortfall]
			}
			engaged, eerr := g.engage(more)
			if eerr == nil {
				newMembers = append(newMembers, engaged...)
			}
		}
	}

	if len(newMembers) < min {
		if len(newMembers) > 0 {
			rollback := newDroneSet(newMembers...)
			_, _ = g.host.CallMulti(rollback, nil, cmdReset, nil, TypeStatus)
			g.host.withLock(func() {
				for _, id := range newMembers {
					delete(g.members, id)
				}
			})
		}
		g.host.withLock(func() { g.state = StateEmpty })
		return nil, errDroneNotFound("you must construct additional drones")
	}

	g.host.withLock(func() { g.state = StateActive })
	return newMembers, nil
}

// Engage invites the given drone ids directly, bypassing discovery. A node
// becomes a member iff it replies status code 0 to !assign.
func (g *Group) Engage(nodes []string) ([]string, error) {
	return g.engage(nodes)
}

func (g *Group) engage(nodes []string) ([]string, error) {
	if len(nodes) == 0 {
		return []string{}, nil
	}

	var seq uint32
	g.host.withLock(func() { seq = g.seq })

	data := AssignData{Group: g.id, Seq: seq}
	ans, err := g.host.CallMulti(newDroneSet(nodes...), nil, cmdAssign, data, TypeStatus)
	if err != nil {
		return nil, err
	}

	var members []string
	for drone, answer := range ans {
		if sd, ok := decodeStatusData(answer); ok && sd.Code == 0 {
			members = append(members, drone)
		}
	}
	sort.Strings(members)

	g.host.withLock(func() {
		for _, id := range members {
			g.members[id] = struct{}{}
		}
	})
	return members, nil
}

// Request is the primary fan-out: it sends (or resends) a command to every
// member and collects replies, alternating send-and-wait iterations with
// recv-only iterations to pace traffic. It returns once every member has a
// terminal answer or the overall timeout elapses; members with no terminal
// answer are mapped to nil.
func (g *Group) Request(typ string, data any, timeout time.Duration) (map[string]*Envelope, error) {
	var pending DroneSet
	g.host.withLock(func() {
		pending = newDroneSet()
		for id := range g.members {
			pending.Add(id)
		}
	})
	if pending.Len() == 0 {
		return nil, errDroneNotFound("drone group is empty")
	}

	var seq uint32
	if len(typ) > 0 && typ[0] == '!' {
		seq = g.host.GenSeq()
	} else {
		g.host.withLock(func() {
			g.seq++
			seq = g.seq
		})
	}

	answers := make(map[string]*Envelope, pending.Len())
	for id := range pending {
		answers[id] = nil
	}

	start := time.Now()
	iter := 0
	g.rearmTimer()
	for pending.Len() > 0 && time.Since(start) < timeout {
		iter++
		expect := pending.Copy()

		if iter%2 == 1 {
			res, err := g.host.Call(g.id, &seq, typ, data, "", expect)
			if err != nil {
				return answers, err
			}
			for k, v := range res {
				answers[k] = v
			}
		} else {
			remaining := timeout - time.Since(start)
			if remaining > maxSubIterationTimeout {
				remaining = maxSubIterationTimeout
			}
			if remaining < 0 {
				remaining = 0
			}
			g.host.RecvUntil(answers, seq, "", remaining, expect)
		}

		for id := range expect {
			answers[id] = nil
		}
		for id, ans := range answers {
			if ans != nil && ans.Type == TypeAccept {
				answers[id] = nil
			} else if pending.Has(id) && ans != nil {
				pending.Remove(id)
			}
		}
		g.rearmTimer()
	}
	return answers, nil
}

// Call wraps Request with strict reply classification, raising on any
// anomaly: an empty group, a member timeout, a reply from a non-member, an
// unsupported command, a positive status code, or a status reply whose data
// cannot be decoded. When update is non-nil,
// the reply map is merged into it and update is returned in place of a
// fresh map.
func (g *Group) Call(typ string, data any, timeout time.Duration, update map[string]*Envelope) (map[string]*Envelope, error) {
	res, err := g.Request(typ, data, timeout)
	if err != nil {
		return nil, err
	}

	if update != nil {
		for k, v := range res {
			update[k] = v
		}
		res = update
	}

	ids := make([]string, 0, len(res))
	for id := range res {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var unreachable, conflict []string
	for _, drone := range ids {
		ans := res[drone]
		member := g.isMember(drone)
		switch {
		case ans == nil && member:
			unreachable = append(unreachable, drone)
		case ans != nil && !member:
			conflict = append(conflict, drone)
		}
	}
	if len(unreachable) > 0 {
		return res, errDroneNotReachable(unreachable)
	}
	if len(conflict) > 0 {
		return res, errDroneConflict(conflict)
	}

	for _, drone := range ids {
		ans := res[drone]
		if ans == nil {
			continue
		}
		switch ans.Type {
		case TypeUnsupported:
			return res, errDroneRuntime(codeUnsupported, "Unknown Command", drone)
		case TypeStatus:
			sd, ok := decodeStatusData(ans)
			if !ok {
				return res, errDroneRuntime(codeProtocol, "Invalid Status Reply", drone)
			}
			if sd.Code > 0 {
				return res, errDroneRuntime(sd.Code, sd.ErrStr, drone)
			}
		}
	}

	return res, nil
}

// Reset disbands the group: it sends !reset to every member and clears
// local membership regardless of individual reply status. Drones that
// never answer are returned as a DroneNotReachableError, but membership is
// still cleared.
func (g *Group) Reset(how string) error {
	var expect DroneSet
	g.host.withLock(func() {
		expect = newDroneSet()
		for id := range g.members {
			expect.Add(id)
		}
		if expect.Len() > 0 {
			g.state = StateResetting
		}
	})
	if expect.Len() == 0 {
		return nil
	}

	_, _ = g.host.Reset(g.id, how, expect)

	g.host.withLock(func() {
		g.members = make(map[string]struct{})
		g.state = StateEmpty
	})
	g.cancelTimer()

	if expect.Len() > 0 {
		stuck := expect.Slice()
		sort.Strings(stuck)
		return errDroneNotReachable(stuck)
	}
	return nil
}
