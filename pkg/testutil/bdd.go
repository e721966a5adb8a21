package testutil

import "testing"

// Given, When, and Then name subtests after the step they describe, so a
// failing flow reads as a sentence in the test output.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Then", desc, fn)
}

// step stops the parent test when a step fails, since later steps depend
// on state the failed one was meant to produce.
func step(t *testing.T, kind, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	ok := t.Run(kind+" "+desc, fn)
	if !ok {
		t.FailNow()
	}
	return ok
}
