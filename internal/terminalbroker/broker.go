// Package terminalbroker bridges a client byte-stream to a container's
// exec channel: TerminalSession create/attach/teardown.
package terminalbroker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// DefaultShell is tried first; FallbackShell is used if the exec into
// DefaultShell fails immediately.
const (
	DefaultShell  = "/bin/bash"
	FallbackShell = "/bin/sh"
)

// DefaultIdleTimeout closes a session after this much inactivity.
const DefaultIdleTimeout = 30 * time.Minute

// ExecOpener is the subset of clustergateway.Gateway the broker needs:
// open an exec channel. Primary pod resolution is PodResolver's job.
type ExecOpener interface {
	Exec(ctx context.Context, namespace, pod, container string, argv []string, tty bool) (ExecChannel, error)
}

// ExecChannel is the bidirectional byte channel clustergateway.Gateway.Exec
// returns, narrowed to what the broker needs so tests substitute a fake
// pipe instead of a real SPDY stream.
type ExecChannel interface {
	io.Writer // client input -> container stdin
	io.Reader // container stdout -> client output
	Resize(rows, cols uint16)
	Close() error
}

// PodResolver resolves the primary pod/container for a Deployment, the
// same lookup the Deployment Tracker's GetLogs uses.
type PodResolver interface {
	PrimaryPod(ctx context.Context, deploymentID string) (namespace, pod, container string, err error)
}

// ClientMessage is one message from the client to the broker.
type ClientMessage struct {
	Type string // "input" | "resize" | "signal"
	Data []byte
	Rows uint16
	Cols uint16
}

// ServerMessage is one message from the broker to the client.
type ServerMessage struct {
	Type string // "output" | "error" | "closed"
	Data []byte
	// Code is the WebSocket close code, set only on a "closed"
	// message; callers translate it into an actual close frame.
	Code int
}

// Session is a live attached exec channel.
type Session struct {
	ID             string
	DeploymentID   string
	PodName        string
	ContainerName  string
	Shell          string
	CreatedAt      time.Time
	lastActivityMu sync.Mutex
	lastActivity   time.Time

	channel ExecChannel

	attachedMu sync.Mutex
	attached   bool

	causeMu    sync.Mutex
	closeCause error

	cancel context.CancelCauseFunc
}

// setCloseCause records why the session ended; the first cause wins,
// so an external shutdown or idle sweep is not overwritten by the
// attach loop's own teardown.
func (s *Session) setCloseCause(cause error) {
	s.causeMu.Lock()
	if s.closeCause == nil {
		s.closeCause = cause
	}
	s.causeMu.Unlock()
}

func (s *Session) closeReason() error {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	return s.closeCause
}

func (s *Session) touch(clock core.Clock) {
	s.lastActivityMu.Lock()
	s.lastActivity = clock.Now()
	s.lastActivityMu.Unlock()
}

// LastActivityAt returns the last time the session saw client traffic.
func (s *Session) LastActivityAt() time.Time {
	s.lastActivityMu.Lock()
	defer s.lastActivityMu.Unlock()
	return s.lastActivity
}

// ErrSessionBusy is returned by Attach when a client is already
// attached to the session.
var ErrSessionBusy = errors.New("terminalbroker: session already has an attached client")

// ErrSessionClosed is returned by Attach/Send after the session ended.
var ErrSessionClosed = errors.New("terminalbroker: session closed")

// Broker owns the session registry, keyed by session_id; entries are
// lookup-only references to live sessions.
type Broker struct {
	opener      ExecOpener
	pods        PodResolver
	ids         core.IDGenerator
	clock       core.Clock
	logger      core.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// New builds a Broker.
func New(opener ExecOpener, pods PodResolver, ids core.IDGenerator, clock core.Clock, logger core.Logger, idleTimeout time.Duration) *Broker {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Broker{
		opener:      opener,
		pods:        pods,
		ids:         ids,
		clock:       clock,
		logger:      logger,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*Session),
	}
}

// Create resolves the Deployment's primary pod, opens an exec channel
// with a TTY and shell (falling back to FallbackShell if DefaultShell
// fails to start), registers the session, and returns its handle.
func (b *Broker) Create(ctx context.Context, deploymentID, shell string) (*Session, error) {
	namespace, pod, container, err := b.pods.PrimaryPod(ctx, deploymentID)
	if err != nil {
		return nil, core.Wrap(core.KindUpstream, "primary_pod_unresolved", "could not resolve primary pod", err)
	}

	if shell == "" {
		shell = DefaultShell
	}
	channel, err := b.opener.Exec(ctx, namespace, pod, container, []string{shell}, true)
	if err != nil && shell == DefaultShell {
		shell = FallbackShell
		channel, err = b.opener.Exec(ctx, namespace, pod, container, []string{shell}, true)
	}
	if err != nil {
		return nil, core.Wrap(core.KindUpstream, "exec_failed", "opening exec channel failed", err)
	}

	now := b.clock.Now()
	_, cancel := context.WithCancelCause(ctx)
	session := &Session{
		ID:            b.ids.NewID(),
		DeploymentID:  deploymentID,
		PodName:       pod,
		ContainerName: container,
		Shell:         shell,
		CreatedAt:     now,
		lastActivity:  now,
		channel:       channel,
		cancel:        cancel,
	}

	b.mu.Lock()
	b.sessions[session.ID] = session
	b.mu.Unlock()

	return session, nil
}

// Get looks up a registered session by ID.
func (b *Broker) Get(sessionID string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	return s, ok
}

// Attach bridges a client's send/receive channels to the session's exec
// channel. Only one client may be attached at a time.
// Two goroutines run (client->cluster, cluster->client) sharing one
// context.CancelCauseFunc: closing either cancels the other. Attach
// blocks until the session ends or ctx is cancelled, and always
// returns with the session torn down.
func (b *Broker) Attach(ctx context.Context, sessionID string, fromClient <-chan ClientMessage, toClient chan<- ServerMessage) error {
	session, ok := b.Get(sessionID)
	if !ok {
		return ErrSessionClosed
	}

	session.attachedMu.Lock()
	if session.attached {
		session.attachedMu.Unlock()
		return ErrSessionBusy
	}
	session.attached = true
	session.attachedMu.Unlock()
	defer func() {
		session.attachedMu.Lock()
		session.attached = false
		session.attachedMu.Unlock()
	}()

	attachCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	idleTimer := time.NewTimer(b.idleTimeout)
	defer idleTimer.Stop()

	var wg sync.WaitGroup
	wg.Add(2)

	// client -> cluster
	go func() {
		defer wg.Done()
		defer cancel(nil)
		for {
			select {
			case <-attachCtx.Done():
				return
			case msg, ok := <-fromClient:
				if !ok {
					return
				}
				session.touch(b.clock)
				idleTimer.Reset(b.idleTimeout)
				switch msg.Type {
				case "input":
					if _, err := session.channel.Write(msg.Data); err != nil {
						cancel(fmt.Errorf("write to exec channel: %w", err))
						return
					}
				case "resize":
					session.channel.Resize(msg.Rows, msg.Cols)
				case "signal":
					// Signals are forwarded as raw input bytes; the
					// container's shell interprets control sequences
					// (e.g. Ctrl-C) itself, matching how a real TTY
					// delivers them.
					_, _ = session.channel.Write(msg.Data)
				}
			}
		}
	}()

	// cluster -> client
	go func() {
		defer wg.Done()
		defer cancel(nil)
		buf := make([]byte, 4096)
		for {
			n, err := session.channel.Read(buf)
			if n > 0 {
				out := make([]byte, n)
				copy(out, buf[:n])
				select {
				case toClient <- ServerMessage{Type: "output", Data: out}:
				case <-attachCtx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					select {
					case toClient <- ServerMessage{Type: "error", Data: []byte(err.Error())}:
					default:
					}
				}
				cancel(err)
				return
			}
			select {
			case <-attachCtx.Done():
				return
			default:
			}
		}
	}()

	go func() {
		select {
		case <-idleTimer.C:
			cancel(errIdleTimeout)
		case <-attachCtx.Done():
		}
	}()

	<-attachCtx.Done()
	// Disconnect and idle timeout both end the session outright: close
	// the exec channel (unblocking the cluster->client reader) and drop
	// the registry entry before joining the bridge goroutines.
	b.close(sessionID, context.Cause(attachCtx))
	wg.Wait()

	// The session's recorded cause wins over the attach context's: a
	// broker Shutdown or idle sweep that raced this teardown already
	// stamped the real reason.
	reason := session.closeReason()
	closeCode, closeMsg := closeCodeFor(reason)
	select {
	case toClient <- ServerMessage{Type: "closed", Data: []byte(closeMsg), Code: closeCode}:
	default:
	}

	return nil
}

var (
	errIdleTimeout    = errors.New("terminalbroker: idle timeout")
	errServerShutdown = errors.New("terminalbroker: server shutdown")
)

func closeCodeFor(reason error) (int, string) {
	switch {
	case reason == nil:
		return 1000, "closed"
	case errors.Is(reason, errIdleTimeout):
		return 1000, "idle timeout"
	case errors.Is(reason, errServerShutdown):
		return 1000, "server shutdown"
	case errors.Is(reason, ErrSessionClosed):
		return 1000, "closed"
	case errors.Is(reason, context.Canceled):
		return 1000, "client disconnect"
	default:
		return 1011, reason.Error()
	}
}

// Close tears down a session: closes the exec channel and removes it
// from the registry.
func (b *Broker) Close(sessionID string) {
	b.close(sessionID, ErrSessionClosed)
}

func (b *Broker) close(sessionID string, cause error) {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	session.setCloseCause(cause)
	session.cancel(cause)
	_ = session.channel.Close()
}

// Shutdown closes every registered session with reason "server
// shutdown".
func (b *Broker) Shutdown() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.close(id, errServerShutdown)
	}
}

// SweepIdle closes every session whose last activity exceeds the
// broker's idle timeout; intended to run on the same tick cadence as
// other background loops rather than per-session timers in tests that
// use a fake clock.
func (b *Broker) SweepIdle() {
	b.mu.Lock()
	var stale []string
	now := b.clock.Now()
	for id, s := range b.sessions {
		if now.Sub(s.LastActivityAt()) > b.idleTimeout {
			stale = append(stale, id)
		}
	}
	b.mu.Unlock()
	for _, id := range stale {
		b.close(id, errIdleTimeout)
	}
}
