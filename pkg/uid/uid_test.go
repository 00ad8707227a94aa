package uid

import "testing"

func TestNewOrderedSortsByCreation(t *testing.T) {
	prev := NewOrdered()
	for i := 0; i < 100; i++ {
		next := NewOrdered()
		if next <= prev {
			t.Fatalf("id %s generated after %s sorts before it", next, prev)
		}
		prev = next
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(New()) || !IsValid(NewOrdered()) {
		t.Fatalf("generated ids should be valid")
	}
	if IsValid("b1") {
		t.Fatalf("b1 is not a uuid")
	}
}
