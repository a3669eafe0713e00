package queue

import (
	"testing"
)

type pairRec struct {
	pairs [][2]string
}

func (p *pairRec) pair(a, b Entry) {
	p.pairs = append(p.pairs, [2]string{a.UserID, b.UserID})
}

func TestPairingIsStrictFIFO(t *testing.T) {
	rec := &pairRec{}
	q := New(nil, nil, rec.pair)

	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		if err := q.Enqueue(u); err != nil {
			t.Fatalf("enqueue %s: %v", u, err)
		}
	}

	if len(rec.pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(rec.pairs))
	}
	if rec.pairs[0] != [2]string{"u1", "u2"} {
		t.Fatalf("first pair = %v, want [u1 u2]", rec.pairs[0])
	}
	if rec.pairs[1] != [2]string{"u3", "u4"} {
		t.Fatalf("second pair = %v, want [u3 u4]", rec.pairs[1])
	}
	if q.Len() != 1 || !q.Waiting("u5") {
		t.Fatalf("u5 should remain queued, len=%d", q.Len())
	}
}

func TestCancellationPreservesArrivalOrder(t *testing.T) {
	rec := &pairRec{}
	q := New(nil, nil, rec.pair)

	_ = q.Enqueue("u1")
	q.Dequeue("u1")
	_ = q.Enqueue("u2")
	_ = q.Enqueue("u3")

	if len(rec.pairs) != 1 || rec.pairs[0] != [2]string{"u2", "u3"} {
		t.Fatalf("pairs = %v, want [[u2 u3]]", rec.pairs)
	}
}

func TestEnqueueDuplicateFailsWithoutSideEffects(t *testing.T) {
	q := New(nil, nil, nil)

	if err := q.Enqueue("u1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue("u1"); err != ErrAlreadyQueued {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("queue size changed on failed enqueue: %d", q.Len())
	}
}

func TestEnqueueWhileInSessionFails(t *testing.T) {
	inSession := func(userID string) bool { return userID == "busy" }
	q := New(inSession, nil, nil)

	if err := q.Enqueue("busy"); err != ErrAlreadyInSession {
		t.Fatalf("expected ErrAlreadyInSession, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("failed enqueue left an entry behind")
	}
}

func TestDequeueIsIdempotent(t *testing.T) {
	q := New(nil, nil, nil)
	_ = q.Enqueue("u1")
	q.Dequeue("u1")
	q.Dequeue("u1") // absent: no-op, no panic
	if q.Len() != 0 || q.Waiting("u1") {
		t.Fatalf("entry survived dequeue")
	}
}

func TestJoinedCallbackRunsBeforePairing(t *testing.T) {
	var order []string
	q := New(nil,
		func(userID string, position int) {
			order = append(order, "joined:"+userID)
			if userID == "u1" && position != 1 {
				t.Fatalf("u1 position = %d, want 1", position)
			}
			if userID == "u2" && position != 2 {
				t.Fatalf("u2 position = %d, want 2", position)
			}
		},
		func(a, b Entry) { order = append(order, "pair") },
	)

	_ = q.Enqueue("u1")
	_ = q.Enqueue("u2")

	want := []string{"joined:u1", "joined:u2", "pair"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
