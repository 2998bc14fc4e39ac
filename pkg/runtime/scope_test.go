package runtime

import "testing"

func TestScopePushGetPop(t *testing.T) {
	s := NewScope()
	s.Push("x", Int(42))
	if v, ok := GetValue[int64](s, "x"); !ok || v != 42 {
		t.Fatalf("expected x = 42, got %v (%v)", v, ok)
	}
	s.Pop()
	if s.Len() != 0 || s.Contains("x") {
		t.Fatalf("pop should restore the empty scope")
	}
}

func TestScopeShadowingAndVisibleIteration(t *testing.T) {
	s := NewScope()
	s.Push("x", Int(1)).Push("y", Int(2)).Push("x", Int(3))
	if v, _ := s.Get("x"); v.Raw() != int64(3) {
		t.Fatalf("newest binding should shadow, got %v", v)
	}
	if idx, _ := s.Search("x"); idx != 2 {
		t.Fatalf("expected search to find index 2, got %d", idx)
	}
	all := s.Iter()
	if len(all) != 3 || all[0].Name != "x" || all[0].Value.Raw() != int64(1) {
		t.Fatalf("unexpected full iteration %v", all)
	}
	visible := s.IterVisible()
	if len(visible) != 2 || visible[0].Name != "x" || visible[0].Value.Raw() != int64(3) || visible[1].Name != "y" {
		t.Fatalf("unexpected visible iteration %v", visible)
	}
}

func TestScopeRewind(t *testing.T) {
	s := NewScope()
	s.Push("a", Int(1))
	mark := s.Len()
	s.Push("b", Int(2)).Push("c", Int(3))
	s.Rewind(mark)
	if s.Len() != 1 || s.Contains("b") {
		t.Fatalf("rewind should drop newer entries")
	}
	s.Rewind(10)
	if s.Len() != 1 {
		t.Fatalf("rewinding past the end must be a no-op")
	}
}

func TestScopeConstants(t *testing.T) {
	s := NewScope()
	s.PushConstant("PI", Float(3.14))
	if c, ok := s.IsConstant("PI"); !ok || !c {
		t.Fatalf("expected PI to be constant")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("SetValue on a constant should panic")
		}
	}()
	s.SetValue("PI", Float(3))
}

func TestScopeSetOrPushShadowsConstants(t *testing.T) {
	s := NewScope()
	s.PushConstant("x", Int(1))
	s.SetOrPush("x", Int(2))
	if s.Len() != 2 {
		t.Fatalf("expected a new binding, got %d entries", s.Len())
	}
	s.SetOrPush("x", Int(3))
	if s.Len() != 2 {
		t.Fatalf("writable binding should be updated in place")
	}
	if v, _ := s.Get("x"); v.Raw() != int64(3) {
		t.Fatalf("expected 3, got %v", v)
	}
}

func TestScopePushResetsAccessButPushDynamicKeepsIt(t *testing.T) {
	s := NewScope()
	ro := Int(1).WithAccess(ReadOnly)
	s.Push("a", ro)
	s.PushDynamic("b", ro)
	if c, _ := s.IsConstant("a"); c {
		t.Fatalf("push should produce a writable binding")
	}
	if c, _ := s.IsConstant("b"); !c {
		t.Fatalf("push_dynamic should keep read-only mode")
	}
}

func TestScopeSlotsStayValid(t *testing.T) {
	s := NewScope()
	s.Push("x", Int(1))
	slot, _ := s.GetMut("x")
	for i := 0; i < 100; i++ {
		s.Push("tmp", Int(int64(i)))
	}
	*slot = Int(7)
	if v, _ := s.Get("x"); v.Raw() != int64(7) {
		t.Fatalf("slot pointer went stale")
	}
}

func TestScopeAliasesAreDeduplicated(t *testing.T) {
	s := NewScope()
	s.Push("x", Int(1))
	s.AddAliasByName("x", "y")
	s.AddAliasByName("x", "y")
	s.AddAliasByName("x", "z")
	if aliases := s.Aliases(0); len(aliases) != 2 {
		t.Fatalf("expected 2 aliases, got %v", aliases)
	}
}
