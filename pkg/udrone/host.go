package udrone

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Host is the local endpoint of the multicast protocol: one UDP socket,
// one randomly generated identity, and the set of Groups it has minted.
// All socket operations and all mutations of a Group's members/seq are
// serialized through a single mutex (see spec §5).
type Host struct {
	mu sync.Mutex

	hostID   string
	uniqueID string

	transport *transport
	log       zerolog.Logger

	groups []*Group
}

// HostOption configures a Host at construction time.
type HostOption func(*hostConfig)

type hostConfig struct {
	localAddr string
	logger    zerolog.Logger
}

// WithLocalAddr pins the outgoing multicast interface to the interface
// owning the given local IPv4 address. When omitted, the OS default
// multicast route is used.
func WithLocalAddr(addr string) HostOption {
	return func(c *hostConfig) { c.localAddr = addr }
}

// WithLogger attaches a structured logger. Without it, Host logs nowhere.
func WithLogger(l zerolog.Logger) HostOption {
	return func(c *hostConfig) { c.logger = l }
}

// NewHost generates a fresh host identity, binds a UDP socket, and returns
// a ready-to-use Host.
func NewHost(opts ...HostOption) (*Host, error) {
	cfg := hostConfig{logger: newDiscardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	t, err := newTransport(cfg.localAddr)
	if err != nil {
		return nil, err
	}

	hostID := randomHostID()
	h := &Host{
		hostID:    hostID,
		uniqueID:  "Host" + hostID,
		transport: t,
		log:       cfg.logger,
	}
	h.log.Info().Str("host", h.uniqueID).Msg("host initialized")
	return h, nil
}

func randomHostID() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("udrone: reading host id entropy: %v", err))
	}
	return hex.EncodeToString(buf)
}

// GenSeq draws a fresh sequence number from a cryptographic source, reduced
// modulo 2,000,000,000 so a group's monotone counter has headroom to climb
// without overflowing a uint32 before the group is recreated.
func (h *Host) GenSeq() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("udrone: reading sequence entropy: %v", err))
	}
	return binary.BigEndian.Uint32(buf[:]) % seqModulus
}

func (h *Host) withLock(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

// UniqueID returns this host's full sender id ("Host"+hostid).
func (h *Host) UniqueID() string { return h.uniqueID }

// Send encodes and emits a single datagram. There is no acknowledgement.
func (h *Host) Send(to string, seq uint32, typ string, data any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendLocked(to, seq, typ, data)
}

func (h *Host) sendLocked(to string, seq uint32, typ string, data any) error {
	raw, err := marshalData(data)
	if err != nil {
		return err
	}
	e := &Envelope{From: h.uniqueID, To: to, Type: typ, Seq: seq, Data: raw}
	buf, err := encodeEnvelope(e)
	if err != nil {
		return err
	}
	h.log.Debug().Str("to", to).Uint32("seq", seq).Str("type", typ).Msg("sending")
	return h.transport.send(buf)
}

// Recv drains one matching envelope immediately available on the socket.
// It returns (nil, false) if none is available right now. Non-matching
// datagrams are silently discarded.
func (h *Host) Recv(seq *uint32, typ string) (*Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recvLocked(seq, typ, time.Now())
}

func (h *Host) recvLocked(seq *uint32, typ string, deadline time.Time) (*Envelope, bool) {
	for {
		raw, ok := h.transport.readOne(deadline)
		if !ok {
			return nil, false
		}
		e, ok := decodeEnvelope(raw)
		if !ok {
			continue
		}
		if !matchesFilter(e, h.uniqueID, seq, typ) {
			continue
		}
		h.log.Debug().Str("from", e.From).Uint32("seq", e.Seq).Str("type", e.Type).Msg("received")
		return e, true
	}
}

// RecvUntil repeatedly waits for readiness and drains matching envelopes
// until timeout elapses or expect becomes empty (when non-nil). Each
// drained envelope is recorded in answers keyed by its sender; if the
// sender is in expect, it is removed.
func (h *Host) RecvUntil(answers map[string]*Envelope, seq uint32, typ string, timeout time.Duration, expect DroneSet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recvUntilLocked(answers, seq, typ, timeout, expect)
}

func (h *Host) recvUntilLocked(answers map[string]*Envelope, seq uint32, typ string, timeout time.Duration, expect DroneSet) {
	start := time.Now()
	deadline := start.Add(timeout)
	for time.Now().Before(deadline) && (expect == nil || expect.Len() > 0) {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if e, ok := h.recvLocked(&seq, typ, time.Now().Add(remaining)); ok {
			answers[e.From] = e
			if expect != nil {
				expect.Remove(e.From)
			}
		}
		// Drain anything else already buffered without waiting again.
		for {
			e, ok := h.recvLocked(&seq, typ, time.Now())
			if !ok {
				break
			}
			answers[e.From] = e
			if expect != nil {
				expect.Remove(e.From)
			}
		}
	}
}

// Call is the single-recipient retransmission loop: send once per resend
// schedule entry, then wait that entry's timeout for matching replies.
// It exits early as soon as expect becomes empty.
func (h *Host) Call(to string, seq *uint32, typ string, data any, resptype string, expect DroneSet) (map[string]*Envelope, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.resolveSeq(seq)
	answers := make(map[string]*Envelope)
	for _, wait := range ResendSchedule {
		if err := h.sendLocked(to, s, typ, data); err != nil {
			return answers, err
		}
		h.recvUntilLocked(answers, s, resptype, wait, expect)
		if expect != nil && expect.Len() == 0 {
			break
		}
	}
	return answers, nil
}

// CallMulti is identical to Call but sends one datagram per node in nodes
// on each iteration; nodes itself is the expectation set, pruned as
// replies arrive.
func (h *Host) CallMulti(nodes DroneSet, seq *uint32, typ string, data any, resptype string) (map[string]*Envelope, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.resolveSeq(seq)
	answers := make(map[string]*Envelope)
	for _, wait := range ResendSchedule {
		for node := range nodes {
			if err := h.sendLocked(node, s, typ, data); err != nil {
				return answers, err
			}
		}
		h.recvUntilLocked(answers, s, resptype, wait, nodes)
		if nodes.Len() == 0 {
			break
		}
	}
	return answers, nil
}

// Whois sends !whois to the given group (commonly DefaultGroupID) and
// collects distinct drone ids from status replies. If need==0, it sends a
// single datagram and returns immediately without waiting -- used as a
// keep-alive ping. board, when non-nil, restricts replies to matching
// hardware.
func (h *Host) Whois(group string, need int, seq *uint32, board any) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.resolveSeq(seq)
	answers := make(map[string]*Envelope)
	for _, wait := range ResendSchedule {
		if err := h.sendLocked(group, s, cmdWhois, board); err != nil {
			return nil, err
		}
		if need == 0 {
			break
		}
		h.recvUntilLocked(answers, s, TypeStatus, wait, nil)
		if need > 0 && len(answers) >= need {
			break
		}
	}
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	return ids, nil
}

// Reset sends the reserved !reset command (optionally requesting a reboot
// via how=="system") and collects status replies, retransmitting per
// schedule.
func (h *Host) Reset(whom string, how string, expect DroneSet) (map[string]*Envelope, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var data any
	if how != "" {
		data = ResetData{How: how}
	}
	s := h.resolveSeq(nil)
	answers := make(map[string]*Envelope)
	for _, wait := range ResendSchedule {
		if err := h.sendLocked(whom, s, cmdReset, data); err != nil {
			return answers, err
		}
		h.recvUntilLocked(answers, s, TypeStatus, wait, expect)
		if expect != nil && expect.Len() == 0 {
			break
		}
	}
	return answers, nil
}

func (h *Host) resolveSeq(seq *uint32) uint32 {
	if seq != nil {
		return *seq
	}
	return h.GenSeq()
}

// Group mints a new Group bound to this host. prefix must be at most
// GroupPrefixMaxLen characters; the returned Group's id is prefix plus this
// host's 6-hex-char suffix, which must not exceed GroupIDMaxLen.
func (h *Host) Group(prefix string) (*Group, error) {
	if len(prefix) > GroupPrefixMaxLen {
		return nil, fmt.Errorf("group prefix %q exceeds %d characters", prefix, GroupPrefixMaxLen)
	}
	id := prefix + h.hostID
	if len(id) > GroupIDMaxLen {
		return nil, fmt.Errorf("group id %q exceeds %d characters", id, GroupIDMaxLen)
	}
	g := newGroup(h, id)
	h.withLock(func() {
		h.groups = append(h.groups, g)
	})
	h.log.Debug().Str("group", id).Msg("group created")
	return g, nil
}

// Disband resets every group this host has minted, swallowing per-group
// failures. It is idempotent and safe to call from a teardown path.
func (h *Host) Disband(how string) {
	var groups []*Group
	h.withLock(func() {
		groups = h.groups
		h.groups = nil
	})
	for _, g := range groups {
		func() {
			defer func() { _ = recover() }()
			_ = g.Reset(how)
		}()
	}
}

// Close releases the host's socket. Call after Disband.
func (h *Host) Close() error {
	return h.transport.close()
}
