package registry

import (
	"testing"
)

type fakeHandle struct {
	id       string
	closed   bool
	closeMsg string
}

func (f *fakeHandle) UserID() string         { return f.id }
func (f *fakeHandle) Username() string       { return f.id }
func (f *fakeHandle) ProfilePicture() string { return "" }
func (f *fakeHandle) Send(string, any) error { return nil }
func (f *fakeHandle) Close(reason string)    { f.closed = true; f.closeMsg = reason }

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	h := &fakeHandle{id: "u1"}
	r.Register(h)

	got, err := r.Lookup("u1")
	if err != nil || got != Handle(h) {
		t.Fatalf("lookup: %v %v", got, err)
	}
	if _, err := r.Lookup("nobody"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestRegisterSupersedesPreviousConnection(t *testing.T) {
	r := New()
	old := &fakeHandle{id: "u1"}
	r.Register(old)

	fresh := &fakeHandle{id: "u1"}
	r.Register(fresh)

	if !old.closed {
		t.Fatalf("previous handle was not closed on supersede")
	}
	got, err := r.Lookup("u1")
	if err != nil || got != Handle(fresh) {
		t.Fatalf("current handle should be the fresh one")
	}
}

func TestUnregisterOfStaleHandleIsNoOp(t *testing.T) {
	r := New()
	old := &fakeHandle{id: "u1"}
	fresh := &fakeHandle{id: "u1"}
	r.Register(old)
	r.Register(fresh)

	// The superseded connection's teardown must not evict the new one.
	r.Unregister("u1", old)
	if !r.Connected("u1") {
		t.Fatalf("stale unregister removed the live handle")
	}

	r.Unregister("u1", fresh)
	if r.Connected("u1") {
		t.Fatalf("live handle survived its own unregister")
	}
}

func TestCleanupCallbacksFireOnUnregister(t *testing.T) {
	r := New()
	var gone []string
	r.OnGone(func(userID string) { gone = append(gone, "queue:"+userID) })
	r.OnGone(func(userID string) { gone = append(gone, "battle:"+userID) })

	h := &fakeHandle{id: "u1"}
	r.Register(h)
	r.Unregister("u1", h)

	if len(gone) != 2 || gone[0] != "queue:u1" || gone[1] != "battle:u1" {
		t.Fatalf("cleanup order = %v", gone)
	}

	// Unregistering an unknown user fires nothing.
	r.Unregister("u2", nil)
	if len(gone) != 2 {
		t.Fatalf("cleanup fired for unknown user: %v", gone)
	}
}
