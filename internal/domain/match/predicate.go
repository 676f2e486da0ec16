package match

// Predicate tests a request, with the path parameters captured for its
// endpoint, and returns true if it matches.
type Predicate func(rc *RequestContext, params PathParams) bool

// And returns a predicate that requires all predicates to match.
func And(predicates ...Predicate) Predicate {
	return func(rc *RequestContext, params PathParams) bool {
		for _, p := range predicates {
			if !p(rc, params) {
				return false
			}
		}
		return true
	}
}

// Or returns a predicate that requires at least one predicate to match.
func Or(predicates ...Predicate) Predicate {
	return func(rc *RequestContext, params PathParams) bool {
		for _, p := range predicates {
			if p(rc, params) {
				return true
			}
		}
		return false
	}
}

// Not returns a predicate that inverts the given predicate.
func Not(p Predicate) Predicate {
	return func(rc *RequestContext, params PathParams) bool {
		return !p(rc, params)
	}
}

// Always returns a predicate that always matches.
func Always() Predicate {
	return func(*RequestContext, PathParams) bool { return true }
}

// Never returns a predicate that never matches.
func Never() Predicate {
	return func(*RequestContext, PathParams) bool { return false }
}
