package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietpi-dashboard/internal/model"
)

func snapFrame(sec int64) model.Envelope {
	return model.Envelope{Type: model.FrameSnapshot, Timestamp: time.Unix(sec, 0)}
}

func TestOutboxSnapshotLaneKeepsNewest(t *testing.T) {
	o := NewOutbox(2, 4)

	assert.Equal(t, Queued, o.PushSnapshot(snapFrame(1)))
	assert.Equal(t, Queued, o.PushSnapshot(snapFrame(2)))
	assert.Equal(t, QueuedDroppedOldest, o.PushSnapshot(snapFrame(3)))

	first, ok := o.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(2), first.Timestamp.Unix())
	second, ok := o.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(3), second.Timestamp.Unix())
	_, ok = o.Pop()
	assert.False(t, ok)

	dropped, _ := o.Dropped()
	assert.Equal(t, uint64(1), dropped)
}

func TestOutboxPushNeverBlocks(t *testing.T) {
	o := NewOutbox(1, 1)
	done := make(chan struct{})
	go func() {
		for i := range 1000 {
			o.PushSnapshot(snapFrame(int64(i)))
			o.PushControl(model.Envelope{Type: model.FrameResult})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked without a reader")
	}
	assert.Equal(t, 2, o.Len())
}

func TestOutboxControlFirst(t *testing.T) {
	o := NewOutbox(4, 4)
	o.PushSnapshot(snapFrame(1))
	o.PushControl(model.Envelope{Type: model.FrameResult})

	env, ok := o.Pop()
	require.True(t, ok)
	assert.Equal(t, model.FrameResult, env.Type)
}

func TestOutboxControlEvictsNoticesBeforeResults(t *testing.T) {
	result := func(id string) model.Envelope {
		return model.Envelope{Type: model.FrameResult, Payload: id}
	}
	notice := func(code string) model.Envelope {
		return model.Envelope{Type: model.FrameNotice, Payload: code}
	}

	o := NewOutbox(1, 3)
	o.PushControl(result("r1"))
	o.PushControl(notice("n1"))
	o.PushControl(result("r2"))
	assert.Equal(t, QueuedDroppedOldest, o.PushControl(notice("n2")))
	assert.Equal(t, QueuedDroppedOldest, o.PushControl(notice("n3")))

	var got []any
	for {
		env, ok := o.Pop()
		if !ok {
			break
		}
		got = append(got, env.Payload)
	}
	assert.Equal(t, []any{"r1", "r2", "n3"}, got)
	_, dropped := o.Dropped()
	assert.Equal(t, uint64(2), dropped)

	t.Run("only results left", func(t *testing.T) {
		o := NewOutbox(1, 2)
		o.PushControl(result("r1"))
		o.PushControl(result("r2"))
		assert.Equal(t, QueuedDroppedOldest, o.PushControl(result("r3")))
		first, ok := o.Pop()
		require.True(t, ok)
		assert.Equal(t, "r2", first.Payload)
	})
}

func TestOutboxReadySignal(t *testing.T) {
	o := NewOutbox(4, 4)
	o.PushSnapshot(snapFrame(1))
	o.PushSnapshot(snapFrame(2))

	select {
	case <-o.Ready():
	default:
		t.Fatal("ready not signalled")
	}
	select {
	case <-o.Ready():
		t.Fatal("ready must coalesce")
	default:
	}
}

func TestOutboxCloseDiscards(t *testing.T) {
	o := NewOutbox(4, 4)
	o.PushSnapshot(snapFrame(1))
	o.PushControl(model.Envelope{Type: model.FrameResult})

	o.Close()
	o.Close()
	assert.True(t, o.Closed())
	assert.Zero(t, o.Len())
	assert.Equal(t, Rejected, o.PushSnapshot(snapFrame(2)))
	assert.Equal(t, Rejected, o.PushControl(model.Envelope{Type: model.FrameNotice}))
	_, ok := o.Pop()
	assert.False(t, ok)
}
