package state

// Rule reacts to a store transition. Then runs only when When reports true
// for the (prev, next) pair.
type Rule[S any] struct {
	Name string
	When func(prev, next S) bool
	Then func(prev, next S)
}

// Watch registers rules against store and returns a function removing them.
func Watch[S any](store *Store[S], rules ...Rule[S]) func() {
	return store.AddListener(func(next, prev S) {
		for _, r := range rules {
			if r.When != nil && r.When(prev, next) {
				r.Then(prev, next)
			}
		}
	})
}

// Became matches transitions where field moves to want from any other value.
func Became[S any, F comparable](field func(S) F, want F) func(prev, next S) bool {
	return func(prev, next S) bool {
		return field(prev) != want && field(next) == want
	}
}

// Left matches transitions where field moves away from from.
func Left[S any, F comparable](field func(S) F, from F) func(prev, next S) bool {
	return func(prev, next S) bool {
		return field(prev) == from && field(next) != from
	}
}

// Changed matches any transition where field differs.
func Changed[S any, F comparable](field func(S) F) func(prev, next S) bool {
	return func(prev, next S) bool {
		return field(prev) != field(next)
	}
}
