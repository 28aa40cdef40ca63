package terminalbroker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// pipeChannel is a fake ExecChannel backed by in-memory pipes, standing
// in for a real SPDY exec stream in tests.
type pipeChannel struct {
	toContainer    *io.PipeReader
	toContainerW   *io.PipeWriter
	fromContainer  *io.PipeReader
	fromContainerW *io.PipeWriter

	mu      sync.Mutex
	resizes [][2]uint16
	closed  bool
}

func newPipeChannel() *pipeChannel {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &pipeChannel{
		toContainer:    inR,
		toContainerW:   inW,
		fromContainer:  outR,
		fromContainerW: outW,
	}
}

func (p *pipeChannel) Write(b []byte) (int, error) { return p.toContainerW.Write(b) }
func (p *pipeChannel) Read(b []byte) (int, error)  { return p.fromContainer.Read(b) }
func (p *pipeChannel) Resize(rows, cols uint16) {
	p.mu.Lock()
	p.resizes = append(p.resizes, [2]uint16{rows, cols})
	p.mu.Unlock()
}
func (p *pipeChannel) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	_ = p.toContainerW.Close()
	_ = p.fromContainerW.Close()
	return nil
}

type fakeOpener struct {
	channel *pipeChannel
}

func (f *fakeOpener) Exec(ctx context.Context, namespace, pod, container string, argv []string, tty bool) (ExecChannel, error) {
	return f.channel, nil
}

type fakePodResolver struct {
	namespace, pod, container string
}

func (f *fakePodResolver) PrimaryPod(ctx context.Context, deploymentID string) (string, string, string, error) {
	return f.namespace, f.pod, f.container, nil
}

// TestCreateRegistersSession exercises session creation and lookup.
func TestCreateRegistersSession(t *testing.T) {
	channel := newPipeChannel()
	broker := New(&fakeOpener{channel: channel}, &fakePodResolver{"default", "bench-0", "bench"}, core.NewSequentialGenerator("s"), core.SystemClock{}, core.NopLogger{}, time.Minute)

	session, err := broker.Create(context.Background(), "dep-1", "")
	require.NoError(t, err)
	require.Equal(t, DefaultShell, session.Shell)
	require.Equal(t, "bench-0", session.PodName)

	got, ok := broker.Get(session.ID)
	require.True(t, ok)
	require.Equal(t, session, got)
}

// TestAttachOnlyOneClientAtATime exercises the "one client per session"
// invariant.
func TestAttachOnlyOneClientAtATime(t *testing.T) {
	channel := newPipeChannel()
	broker := New(&fakeOpener{channel: channel}, &fakePodResolver{"default", "bench-0", "bench"}, core.NewSequentialGenerator("s"), core.SystemClock{}, core.NopLogger{}, time.Minute)

	session, err := broker.Create(context.Background(), "dep-1", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	from1 := make(chan ClientMessage)
	to1 := make(chan ServerMessage, 8)
	attached := make(chan struct{})
	go func() {
		close(attached)
		_ = broker.Attach(ctx, session.ID, from1, to1)
	}()
	<-attached
	// give the first Attach a moment to mark itself attached.
	time.Sleep(20 * time.Millisecond)

	from2 := make(chan ClientMessage)
	to2 := make(chan ServerMessage, 8)
	err = broker.Attach(context.Background(), session.ID, from2, to2)
	require.ErrorIs(t, err, ErrSessionBusy)
}

// TestAttachBridgesBytes exercises the bidirectional bridge: client
// input reaches the container, container output reaches the client.
func TestAttachBridgesBytes(t *testing.T) {
	channel := newPipeChannel()
	broker := New(&fakeOpener{channel: channel}, &fakePodResolver{"default", "bench-0", "bench"}, core.NewSequentialGenerator("s"), core.SystemClock{}, core.NopLogger{}, time.Minute)

	session, err := broker.Create(context.Background(), "dep-1", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	fromClient := make(chan ClientMessage)
	toClient := make(chan ServerMessage, 8)

	attachDone := make(chan struct{})
	go func() {
		_ = broker.Attach(ctx, session.ID, fromClient, toClient)
		close(attachDone)
	}()

	fromClient <- ClientMessage{Type: "input", Data: []byte("ls\n")}
	readBuf := make([]byte, 3)
	_, err = io.ReadFull(channel.toContainer, readBuf)
	require.NoError(t, err)
	require.Equal(t, "ls\n", string(readBuf))

	_, err = channel.fromContainerW.Write([]byte("hello"))
	require.NoError(t, err)
	msg := <-toClient
	require.Equal(t, "output", msg.Type)
	require.Equal(t, "hello", string(msg.Data))

	cancel()
	<-attachDone
}

// TestCloseTearsDownSession exercises session teardown.
func TestCloseTearsDownSession(t *testing.T) {
	channel := newPipeChannel()
	broker := New(&fakeOpener{channel: channel}, &fakePodResolver{"default", "bench-0", "bench"}, core.NewSequentialGenerator("s"), core.SystemClock{}, core.NopLogger{}, time.Minute)

	session, err := broker.Create(context.Background(), "dep-1", "")
	require.NoError(t, err)

	broker.Close(session.ID)

	_, ok := broker.Get(session.ID)
	require.False(t, ok)

	channel.mu.Lock()
	closed := channel.closed
	channel.mu.Unlock()
	require.True(t, closed)
}

// TestShutdownClosesAllSessions exercises graceful shutdown.
func TestShutdownClosesAllSessions(t *testing.T) {
	channel1 := newPipeChannel()
	channel2 := newPipeChannel()
	opener := &multiOpener{channels: []*pipeChannel{channel1, channel2}}
	broker := New(opener, &fakePodResolver{"default", "bench-0", "bench"}, core.NewSequentialGenerator("s"), core.SystemClock{}, core.NopLogger{}, time.Minute)

	s1, err := broker.Create(context.Background(), "dep-1", "")
	require.NoError(t, err)
	s2, err := broker.Create(context.Background(), "dep-2", "")
	require.NoError(t, err)

	broker.Shutdown()

	_, ok := broker.Get(s1.ID)
	require.False(t, ok)
	_, ok = broker.Get(s2.ID)
	require.False(t, ok)
}

// TestShutdownSendsServerShutdownReason: an attached client observes
// the close reason "server shutdown" when the broker shuts down
// underneath it.
func TestShutdownSendsServerShutdownReason(t *testing.T) {
	channel := newPipeChannel()
	broker := New(&fakeOpener{channel: channel}, &fakePodResolver{"default", "bench-0", "bench"}, core.NewSequentialGenerator("s"), core.SystemClock{}, core.NopLogger{}, time.Minute)

	session, err := broker.Create(context.Background(), "dep-1", "")
	require.NoError(t, err)

	fromClient := make(chan ClientMessage)
	toClient := make(chan ServerMessage, 8)
	attachDone := make(chan struct{})
	go func() {
		_ = broker.Attach(context.Background(), session.ID, fromClient, toClient)
		close(attachDone)
	}()
	// Give the attach loop a moment to engage before shutting down.
	time.Sleep(20 * time.Millisecond)

	broker.Shutdown()
	<-attachDone

	var closed *ServerMessage
	for len(toClient) > 0 {
		msg := <-toClient
		if msg.Type == "closed" {
			closed = &msg
		}
	}
	require.NotNil(t, closed)
	require.Equal(t, 1000, closed.Code)
	require.Equal(t, "server shutdown", string(closed.Data))
}

type multiOpener struct {
	mu       sync.Mutex
	channels []*pipeChannel
	next     int
}

func (m *multiOpener) Exec(ctx context.Context, namespace, pod, container string, argv []string, tty bool) (ExecChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.channels[m.next]
	m.next++
	return c, nil
}
