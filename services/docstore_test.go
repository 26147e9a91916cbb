package services

import "testing"

func TestOrderValuesPreservesKeyOrder(t *testing.T) {
	keys := []string{"c", "a", "b"}
	found := map[string]string{
		"a": "alpha",
		"b": "beta",
		"c": "gamma",
	}

	out := orderValues(keys, found)
	if len(out) != 3 {
		t.Fatalf("expected 3 values, got %d", len(out))
	}
	want := []string{"gamma", "alpha", "beta"}
	for i, w := range want {
		if out[i] == nil || *out[i] != w {
			t.Errorf("out[%d] = %v, want %q", i, out[i], w)
		}
	}
}

func TestOrderValuesMissingKeysAreNil(t *testing.T) {
	keys := []string{"a", "missing", "b"}
	found := map[string]string{"a": "alpha", "b": "beta"}

	out := orderValues(keys, found)
	if out[0] == nil || *out[0] != "alpha" {
		t.Errorf("out[0] = %v, want alpha", out[0])
	}
	if out[1] != nil {
		t.Errorf("out[1] = %q, want nil for missing key", *out[1])
	}
	if out[2] == nil || *out[2] != "beta" {
		t.Errorf("out[2] = %v, want beta", out[2])
	}
}

func TestOrderValuesEmptyKeys(t *testing.T) {
	out := orderValues(nil, map[string]string{"a": "alpha"})
	if len(out) != 0 {
		t.Errorf("expected empty result, got %d values", len(out))
	}
}
