package set

type unit = struct{}

// Set is an unordered set of values of type T.
type Set[T comparable] map[T]unit

// New returns an empty set.
func New[T comparable]() Set[T] {
	return make(Set[T])
}

// FromSlice returns a set containing the values in the given slice.
func FromSlice[T comparable](vals []T) Set[T] {
	set := make(Set[T], len(vals))
	for _, v := range vals {
		set.Insert(v)
	}
	return set
}

// Contains checks whether the passed-in value is present in the Set.
func (s *Set[T]) Contains(val T) bool {
	_, ok := (map[T]unit)(*s)[val]
	return ok
}

// Insert adds the passed-in value to the Set.
func (s *Set[T]) Insert(val T) {
	(map[T]unit)(*s)[val] = unit{}
}

// Remove removes the passed-in value from the Set.
func (s *Set[T]) Remove(val T) {
	delete((map[T]unit)(*s), val)
}

// ToSlice builds a new slice populated with the contents of the Set.
func (s Set[T]) ToSlice() []T {
	res := make([]T, 0, len(s))
	for val := range s {
		res = append(res, val)
	}
	return res
}
