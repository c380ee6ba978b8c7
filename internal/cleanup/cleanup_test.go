package cleanup

import (
	"errors"
	"testing"
)

func TestRunAllOrderAndErrors(t *testing.T) {
	var order []int
	errClose := errors.New("close failed")
	Register(func() error { order = append(order, 1); return nil })
	Register(nil)
	Register(func() error { order = append(order, 2); return errClose })
	Register(func() error { order = append(order, 3); return nil })

	err := RunAll()
	if !errors.Is(err, errClose) {
		t.Fatalf("expected wrapped hook error, got %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("hooks ran in %v", order)
	}
	if err := RunAll(); err != nil {
		t.Fatalf("second run should have nothing to do, got %v", err)
	}
}
