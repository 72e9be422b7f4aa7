package udrone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	h, err := NewHost(WithLocalAddr("127.0.0.1"))
	if err != nil {
		t.Skipf("multicast transport unavailable in this sandbox: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestWhoisDiscoversIdleDrones(t *testing.T) {
	h := newTestHost(t)
	newFakeDrone(t, "d1")
	newFakeDrone(t, "d2")

	ids, err := h.Whois(DefaultGroupID, 2, nil, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"d1", "d2"}, ids)
}

func TestAssignSuccess(t *testing.T) {
	h := newTestHost(t)
	newFakeDrone(t, "d1")
	newFakeDrone(t, "d2")

	g, err := h.Group("QA")
	require.NoError(t, err)

	members, err := g.Assign(2, 2, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"d1", "d2"}, members)
	require.ElementsMatch(t, []string{"d1", "d2"}, g.Members())
	require.Equal(t, StateActive, g.State())
}

func TestAssignShortfallRollsBack(t *testing.T) {
	h := newTestHost(t)
	good := newFakeDrone(t, "d1")
	_ = good
	bad := newFakeDrone(t, "d2")
	bad.setRejectAll(true)

	g, err := h.Group("QA")
	require.NoError(t, err)

	members, err := g.Assign(2, 2, nil)
	require.Error(t, err)
	require.Nil(t, members)
	var notFound *DroneNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Empty(t, g.Members())
	require.Equal(t, StateEmpty, g.State())

	// d1 must have been rolled back to idle and so still discoverable.
	ids, err := h.Whois(DefaultGroupID, 1, nil, nil)
	require.NoError(t, err)
	require.Contains(t, ids, "d1")
}

func TestCallAcceptThenStatus(t *testing.T) {
	h := newTestHost(t)
	d1 := newFakeDrone(t, "d1")
	newFakeDrone(t, "d2")

	g, err := h.Group("QA")
	require.NoError(t, err)
	_, err = g.Assign(2, 2, nil)
	require.NoError(t, err)

	first := true
	d1.setAppHandler(func(req *Envelope) []scriptedReply {
		if first {
			first = false
			return []scriptedReply{
				{typ: TypeAccept},
				{delay: 200 * time.Millisecond, typ: TypeStatus, data: StatusData{Code: 0}},
			}
		}
		return []scriptedReply{{typ: TypeStatus, data: StatusData{Code: 0}}}
	})

	start := time.Now()
	answers, err := g.Call("run", map[string]int{"x": 1}, 5*time.Second, nil)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
	require.Len(t, answers, 2)
	for _, a := range answers {
		require.Equal(t, TypeStatus, a.Type)
	}
}

func TestCallTimesOutOnSilentMember(t *testing.T) {
	h := newTestHost(t)
	d1 := newFakeDrone(t, "d1")
	d1.setSilent(true)

	g, err := h.Group("QA")
	require.NoError(t, err)
	_, err = g.Assign(1, 1, nil)
	require.NoError(t, err)

	_, err = g.Call("run", nil, 1*time.Second, nil)
	require.Error(t, err)
	var unreachable *DroneNotReachableError
	require.ErrorAs(t, err, &unreachable)
	require.Contains(t, unreachable.Drones, "d1")
}

func TestCallRuntimeError(t *testing.T) {
	h := newTestHost(t)
	d1 := newFakeDrone(t, "d1")

	g, err := h.Group("QA")
	require.NoError(t, err)
	_, err = g.Assign(1, 1, nil)
	require.NoError(t, err)

	d1.setAppHandler(func(req *Envelope) []scriptedReply {
		return []scriptedReply{{typ: TypeStatus, data: StatusData{Code: 7, ErrStr: "bad arg"}}}
	})

	_, err = g.Call("run", nil, 5*time.Second, nil)
	require.Error(t, err)
	var rtErr *DroneRuntimeError
	require.ErrorAs(t, err, &rtErr)
	require.Equal(t, 7, rtErr.Code)
	require.Equal(t, "bad arg", rtErr.Message)
	require.Equal(t, "d1", rtErr.Drone)
}

func TestCallUnsupported(t *testing.T) {
	h := newTestHost(t)
	d1 := newFakeDrone(t, "d1")

	g, err := h.Group("QA")
	require.NoError(t, err)
	_, err = g.Assign(1, 1, nil)
	require.NoError(t, err)

	d1.setAppHandler(func(req *Envelope) []scriptedReply {
		return []scriptedReply{{typ: TypeUnsupported}}
	})

	_, err = g.Call("unknown-cmd", nil, 5*time.Second, nil)
	require.Error(t, err)
	var rtErr *DroneRuntimeError
	require.ErrorAs(t, err, &rtErr)
	require.Equal(t, codeUnsupported, rtErr.Code)
}

func TestCallConflictFromUnknownDrone(t *testing.T) {
	h := newTestHost(t)
	newFakeDrone(t, "d1")

	g, err := h.Group("QA")
	require.NoError(t, err)
	_, err = g.Assign(1, 1, nil)
	require.NoError(t, err)

	rogue := newFakeDrone(t, "dZ")

	// dZ never went through !assign, but a buggy drone might still answer
	// the group address; force it into the group without the host knowing.
	rogue.mu.Lock()
	rogue.member = g.ID()
	rogue.mu.Unlock()

	_, err = g.Call("run", nil, 5*time.Second, nil)
	require.Error(t, err)
	var conflict *DroneConflictError
	require.ErrorAs(t, err, &conflict)
	require.Contains(t, conflict.Drones, "dZ")
}

func TestAssignMaxZeroIsNoop(t *testing.T) {
	h := newTestHost(t)
	newFakeDrone(t, "d1")

	g, err := h.Group("Z")
	require.NoError(t, err)

	members, err := g.Assign(0, 0, nil)
	require.NoError(t, err)
	require.Empty(t, members)
	require.Equal(t, StateEmpty, g.State())
}

func TestRequestZeroTimeoutReturnsImmediately(t *testing.T) {
	h := newTestHost(t)
	newFakeDrone(t, "d1")

	g, err := h.Group("T0")
	require.NoError(t, err)
	_, err = g.Assign(1, 1, nil)
	require.NoError(t, err)

	start := time.Now()
	answers, err := g.Request("run", nil, 0)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 200*time.Millisecond)
	require.Len(t, answers, 1)
	for _, a := range answers {
		require.Nil(t, a)
	}
}

func TestGroupResetClearsMembers(t *testing.T) {
	h := newTestHost(t)
	newFakeDrone(t, "d1")

	g, err := h.Group("R")
	require.NoError(t, err)
	_, err = g.Assign(1, 1, nil)
	require.NoError(t, err)

	require.NoError(t, g.Reset(""))
	require.Empty(t, g.Members())
	require.Equal(t, StateEmpty, g.State())
}
