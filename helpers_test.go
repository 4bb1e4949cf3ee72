package relate

import "testing"

func TestValidateColumnName(t *testing.T) {
	valid := []string{"id", "user_id", "users.id", "_hidden", "Col9"}
	for _, name := range valid {
		if err := ValidateColumnName(name); err != nil {
			t.Errorf("ValidateColumnName(%q) = %v, want nil", name, err)
		}
	}
	invalid := []string{"", "id; DROP TABLE x", "a.b.c", "users.*", "1col", "co-l"}
	for _, name := range invalid {
		if err := ValidateColumnName(name); err == nil {
			t.Errorf("ValidateColumnName(%q) = nil, want error", name)
		}
	}
}

func TestDictionaryKeyNormalization(t *testing.T) {
	// Mixed representations of the same integer key must collide.
	a, ok := dictionaryKey(int64(7), KeyInt)
	if !ok {
		t.Fatal("int64 key not accepted")
	}
	b, ok := dictionaryKey("7", KeyInt)
	if !ok {
		t.Fatal("numeric string key not accepted")
	}
	c, ok := dictionaryKey(7.0, KeyInt)
	if !ok {
		t.Fatal("float key not accepted")
	}
	if a != b || b != c {
		t.Errorf("keys differ: %q %q %q", a, b, c)
	}

	if _, ok := dictionaryKey(nil, KeyInt); ok {
		t.Error("nil must not produce a key")
	}
	if _, ok := dictionaryKey("abc", KeyInt); ok {
		t.Error("non-numeric string must not produce an int key")
	}

	s, ok := dictionaryKey(42, KeyString)
	if !ok || s != "42" {
		t.Errorf("string key = %q, %v", s, ok)
	}
}

func TestSortedDistinctKeys(t *testing.T) {
	got := sortedDistinctKeys([]any{int64(3), "1", nil, int64(1), 2, "abc"}, KeyInt)
	if len(got) != 3 {
		t.Fatalf("keys = %v, want 3 entries", got)
	}
	if got[0] != int64(1) || got[1] != int64(2) || got[2] != int64(3) {
		t.Errorf("keys = %v, want [1 2 3]", got)
	}

	strs := sortedDistinctKeys([]any{"b", "a", "b", nil}, KeyString)
	if len(strs) != 2 || strs[0] != "a" || strs[1] != "b" {
		t.Errorf("keys = %v, want [a b]", strs)
	}
}

func TestRelationAliasIsUnique(t *testing.T) {
	a := relationAlias()
	b := relationAlias()
	if a == b {
		t.Errorf("aliases collide: %q", a)
	}
	if err := ValidateColumnName(a); err != nil {
		t.Errorf("alias %q is not a valid identifier: %v", a, err)
	}
}
