package reassembly

import (
	"testing"
	"time"

	"github.com/unprotocol/unp/wire"
)

func fragment(idx, total uint16, payload []byte) *wire.Message {
	return &wire.Message{
		ProtocolSignature: "UNP",
		Type:              wire.TypeQuery,
		Command:           "xfer",
		ID:                7,
		Fragmented:        true,
		HasData:           true,
		FragmentIndex:     idx,
		FragmentsTotal:    total,
		EncodedPayload:    payload,
		Sender:            wire.Endpoint{Addr: "10.0.0.1", Port: 9000},
	}
}

func TestAcceptCompletesInOrder(t *testing.T) {
	r := New(2*time.Second, 4, nil)
	defer r.Close()

	if msg, err := r.Accept(fragment(0, 2, []byte("AB"))); err != nil || msg != nil {
		t.Fatalf("expected incomplete, got msg=%v err=%v", msg, err)
	}
	msg, err := r.Accept(fragment(1, 2, []byte("CD")))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if msg == nil {
		t.Fatal("expected completion on second fragment")
	}
	if string(msg.EncodedPayload) != "ABCD" {
		t.Fatalf("reassembled payload = %q", msg.EncodedPayload)
	}
	if !msg.Reassembled || msg.Fragmented {
		t.Fatalf("expected Reassembled=true Fragmented=false, got %+v", msg)
	}
}

func TestAcceptOutOfOrder(t *testing.T) {
	r := New(2*time.Second, 4, nil)
	defer r.Close()

	r.Accept(fragment(2, 3, []byte("GH")))
	r.Accept(fragment(0, 3, []byte("AB")))
	msg, err := r.Accept(fragment(1, 3, []byte("CD")))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if msg == nil {
		t.Fatal("expected completion")
	}
	if string(msg.EncodedPayload) != "ABCDGH" {
		t.Fatalf("payload order wrong: %q", msg.EncodedPayload)
	}
}

func TestAcceptDuplicateFragmentOverwrites(t *testing.T) {
	r := New(2*time.Second, 4, nil)
	defer r.Close()

	r.Accept(fragment(0, 2, []byte("AB")))
	r.Accept(fragment(0, 2, []byte("AB"))) // retransmitted duplicate
	msg, err := r.Accept(fragment(1, 2, []byte("CD")))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if msg == nil || string(msg.EncodedPayload) != "ABCD" {
		t.Fatalf("unexpected result: %+v", msg)
	}
}

func TestAcceptRejectsOutOfRangeIndex(t *testing.T) {
	r := New(2*time.Second, 4, nil)
	defer r.Close()

	_, err := r.Accept(fragment(5, 2, []byte("AB")))
	if err == nil {
		t.Fatal("expected error for out-of-range fragment index")
	}
}

func TestReassemblyAgesOut(t *testing.T) {
	r := New(40*time.Millisecond, 4, nil)
	defer r.Close()

	r.Accept(fragment(0, 2, []byte("AB")))
	time.Sleep(60 * time.Millisecond)

	// Second fragment now looks like the start of a fresh reassembly since
	// the first fragment's entry aged out.
	msg, err := r.Accept(fragment(1, 2, []byte("CD")))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if msg != nil {
		t.Fatal("expected incomplete reassembly after eviction of fragment 0")
	}
}
