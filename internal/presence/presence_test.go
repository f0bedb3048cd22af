package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_EnterLeave(t *testing.T) {
	var s State
	assert.False(t, s.IsViewing("r1"))

	s.Enter("r1")
	assert.True(t, s.IsViewing("r1"))
	assert.False(t, s.IsViewing("r2"))

	s.SetForeground(false)
	assert.False(t, s.IsViewing("r1"))
	assert.Equal(t, Record{RoomID: "r1"}, s.Snapshot())

	s.SetForeground(true)
	assert.True(t, s.IsViewing("r1"))

	s.Leave()
	assert.Equal(t, Record{}, s.Snapshot())
	assert.False(t, s.IsViewing(""))
}

func TestRegistry_Foregrounded(t *testing.T) {
	r := NewRegistry()
	phone := r.Add("u1")
	laptop := r.Add("u1")
	assert.True(t, r.Online("u1"))

	laptop.Enter("room")
	laptop.SetForeground(false)
	assert.False(t, r.Foregrounded("u1", "room"))

	phone.Enter("room")
	assert.True(t, r.Foregrounded("u1", "room"))
	assert.False(t, r.Foregrounded("u2", "room"))

	r.Remove("u1", phone)
	assert.False(t, r.Foregrounded("u1", "room"))
	r.Remove("u1", laptop)
	assert.False(t, r.Online("u1"))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := r.Add("u1")
			st.Enter("room")
			_ = r.Foregrounded("u1", "room")
			r.Remove("u1", st)
		}()
	}
	wg.Wait()
	assert.False(t, r.Online("u1"))
}
