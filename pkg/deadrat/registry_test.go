package deadrat

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return newRegistry(log)
}

func TestRegistry_Command_ReRegistrationOverwrites(t *testing.T) {
	r := newTestRegistry()

	var called string
	r.Command("/cmd", func(msg *Message) error {
		called = "first"
		return nil
	})
	r.Command("/cmd", func(msg *Message) error {
		called = "second"
		return nil
	})

	entry, ok := r.lookup("/cmd")
	require.True(t, ok)
	assert.Equal(t, MessageOnly, entry.arity)

	require.NoError(t, entry.msgFn(&Message{}))
	assert.Equal(t, "second", called)
}

func TestRegistry_CommandWithArgs_StoresArityTag(t *testing.T) {
	r := newTestRegistry()

	r.CommandWithArgs("/echo", func(msg *Message, args []string) error {
		return nil
	})

	entry, ok := r.lookup("/echo")
	require.True(t, ok)
	assert.Equal(t, MessageAndArgs, entry.arity)
	assert.NotNil(t, entry.cmdFn)
	assert.Nil(t, entry.msgFn)
}

func TestRegistry_Command_ReturnsRegisteredHandler(t *testing.T) {
	r := newTestRegistry()

	fn := func(msg *Message) error { return nil }
	got := r.Command("/cmd", fn)
	assert.NotNil(t, got)

	gotCatchAll := r.OnMessage(fn)
	assert.NotNil(t, gotCatchAll)
}

func TestRegistry_OnMessage_PreservesRegistrationOrder(t *testing.T) {
	r := newTestRegistry()

	var order []string
	r.OnMessage(func(msg *Message) error {
		order = append(order, "first")
		return nil
	})
	r.OnMessage(func(msg *Message) error {
		order = append(order, "second")
		return nil
	})

	require.Len(t, r.catchAll, 2)
	for _, fn := range r.catchAll {
		require.NoError(t, fn(&Message{}))
	}
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRegistry_On_UnknownEventIgnored(t *testing.T) {
	r := newTestRegistry()

	startupCalls := 0
	r.On(EventStartup, func(err error, msg *Message) {
		startupCalls++
	})

	// Must not add a slot and must not disturb the existing ones.
	r.On("bogus", func(err error, msg *Message) {})

	assert.Len(t, r.events, 4)
	_, exists := r.events["bogus"]
	assert.False(t, exists)

	r.fire(EventStartup, nil, nil)
	assert.Equal(t, 1, startupCalls)
}

func TestRegistry_On_KnownEventsAccepted(t *testing.T) {
	r := newTestRegistry()

	for _, event := range []string{EventStartup, EventShutdown, EventConnectionError, EventError} {
		r.On(event, func(err error, msg *Message) {})
		assert.NotNil(t, r.events[event], event)
	}
}

func TestRegistry_Fire_NoHandlerIsNoop(t *testing.T) {
	r := newTestRegistry()

	assert.NotPanics(t, func() {
		r.fire(EventError, errors.New("boom"), nil)
	})
}

func TestRegistry_Fire_RecoversHandlerPanic(t *testing.T) {
	r := newTestRegistry()

	r.On(EventStartup, func(err error, msg *Message) {
		panic("startup gone wrong")
	})

	assert.NotPanics(t, func() {
		r.fire(EventStartup, nil, nil)
	})
}

func TestRegistry_Fire_PassesErrorAndMessage(t *testing.T) {
	r := newTestRegistry()

	var gotErr error
	var gotMsg *Message
	r.On(EventError, func(err error, msg *Message) {
		gotErr = err
		gotMsg = msg
	})

	boom := errors.New("boom")
	msg := &Message{ID: "m1"}
	r.fire(EventError, boom, msg)

	assert.Equal(t, boom, gotErr)
	assert.Equal(t, msg, gotMsg)
}
