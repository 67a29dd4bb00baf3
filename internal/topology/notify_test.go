package topology

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierWithoutListenersQueuesNothing(t *testing.T) {
	n := notifier{size: 2}
	_, dropped := n.enqueue(PropertyChange{Property: PropDataVIP})
	assert.False(t, dropped)
	_, ok := n.next()
	assert.False(t, ok)
}

func TestNotifierDropsOldest(t *testing.T) {
	n := notifier{size: 2}
	n.add(&recorder{})

	for _, v := range []string{"a", "b"} {
		_, dropped := n.enqueue(PropertyChange{Property: PropDataVIP, New: v})
		assert.False(t, dropped)
	}
	old, dropped := n.enqueue(PropertyChange{Property: PropDataVIP, New: "c"})
	require.True(t, dropped)
	assert.Equal(t, "a", old.New)

	var got []string
	for {
		d, ok := n.next()
		if !ok {
			break
		}
		got = append(got, d.ev.New)
	}
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestNotifierSnapshotsListeners(t *testing.T) {
	n := notifier{size: 4}
	a, b := &recorder{}, &recorder{}
	idA := n.add(a)
	n.enqueue(PropertyChange{Property: PropSubnet})
	n.add(b)
	require.True(t, n.remove(idA))
	n.enqueue(PropertyChange{Property: PropGateway})

	first, _ := n.next()
	second, _ := n.next()
	deliver(t.Name(), first)
	deliver(t.Name(), second)

	assert.Equal(t, []PropertyChange{{Property: PropSubnet}}, a.get())
	assert.Equal(t, []PropertyChange{{Property: PropGateway}}, b.get())
}

func TestQueueOverflowIsCounted(t *testing.T) {
	store := newStore(t)
	writeDescriptor(t, store, 1, testCell(t, 1))
	id := 1
	m, err := NewMultiCell(Options{LocalCellID: &id, Store: store, QueueSize: 1})
	require.NoError(t, err)
	rec := &recorder{}
	m.AddPropertyListener(rec)
	before := testutil.ToFloat64(notificationsDroppedTotal)

	changed := testCell(t, 1)
	changed.SetDataVIP("10.5.0.11")
	changed.SetAdminVIP("10.5.0.10")
	writeDescriptor(t, store, 2, changed)
	m.AdminVIP()

	// Both fields changed in one refresh; only the newer event fits.
	assert.Equal(t, []PropertyChange{{Property: PropAdminVIP, Old: "10.0.1.10", New: "10.5.0.10"}}, rec.get())
	assert.Equal(t, before+1, testutil.ToFloat64(notificationsDroppedTotal))
}
