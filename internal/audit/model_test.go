package audit

import "testing"

func TestNewEventLogHash(t *testing.T) {
	e := NewEventLog(ActionCreateOrder, "Test order ORD-X created", "tech-1", EntityTestOrder, "order-1")

	if e.EventID.IsZero() {
		t.Fatal("Expected an event ID")
	}
	if e.Hash == "" {
		t.Fatal("Expected a content hash")
	}
	if !e.VerifyHash() {
		t.Fatal("Expected fresh entry to verify")
	}
}

func TestVerifyHashDetectsTampering(t *testing.T) {
	e := NewEventLog(ActionDeleteOrder, "Test order deleted", "tech-1", EntityTestOrder, "order-1")

	e.Message = "Test order retained"
	if e.VerifyHash() {
		t.Fatal("Expected tampered entry to fail verification")
	}
}

func TestHashChainsOnPrevHash(t *testing.T) {
	first := NewEventLog(ActionCreateOrder, "created", "tech-1", EntityTestOrder, "order-1")

	second := NewEventLog(ActionModifyOrder, "modified", "tech-1", EntityTestOrder, "order-1")
	withoutChain := second.computeHash()

	second.PrevHash = first.Hash
	withChain := second.computeHash()

	if withoutChain == withChain {
		t.Fatal("Expected the previous hash to change the content hash")
	}

	second.Hash = withChain
	if !second.VerifyHash() {
		t.Fatal("Expected chained entry to verify")
	}
}
