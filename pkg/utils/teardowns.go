package utils

// Teardowns collects cleanup funcs and runs them in reverse order of
// registration, like a deferred stack that can be handed around.
type Teardowns struct {
	funcs []func()
}

func (t *Teardowns) Add(fn func()) {
	t.funcs = append(t.funcs, fn)
}

func (t *Teardowns) Teardown() {
	for i := len(t.funcs) - 1; i >= 0; i-- {
		t.funcs[i]()
	}
}
