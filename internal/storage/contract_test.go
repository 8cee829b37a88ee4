package storage

import (
	"context"
	"errors"
	"testing"
)

// runStoreContract exercises the Store contract shared by every driver.
func runStoreContract(t *testing.T, st Store, ns string) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := st.Get(ctx, Join(ns, "missing")); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}
	kids, err := st.Children(ctx, ns)
	if err != nil {
		t.Fatalf("Children(empty): %v", err)
	}
	if len(kids) != 0 {
		t.Fatalf("Children(empty) = %d entries, want 0", len(kids))
	}

	for _, k := range []string{"b", "a", "c"} {
		if err := st.Set(ctx, Join(ns, k), []byte(`{"v":"`+k+`"}`)); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := st.Set(ctx, Join(ns, "a"), []byte(`{"v":"a2"}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := st.Get(ctx, Join(ns, "a"))
	if err != nil || !ok {
		t.Fatalf("Get(a) = ok=%v err=%v", ok, err)
	}
	if string(v) != `{"v":"a2"}` {
		t.Fatalf("Get(a) = %s, want overwritten value", v)
	}

	kids, err = st.Children(ctx, ns)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(kids) != 3 || kids[0].Key != "a" || kids[1].Key != "b" || kids[2].Key != "c" {
		t.Fatalf("Children = %+v, want a,b,c in order", kids)
	}

	if err := st.Delete(ctx, Join(ns, "b")); err != nil {
		t.Fatalf("Delete(b): %v", err)
	}
	if err := st.Delete(ctx, Join(ns, "b")); err != nil {
		t.Fatalf("Delete(b) twice: %v", err)
	}
	if _, ok, _ := st.Get(ctx, Join(ns, "b")); ok {
		t.Fatal("b still present after Delete")
	}

	if err := st.Set(ctx, Join(ns, "bad.key"), []byte(`{}`)); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("Set(bad.key) err = %v, want ErrInvalidPath", err)
	}
}
