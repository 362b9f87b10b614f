package value

// Equal reports whether a and b hold the same value.
//
// Comparison is structural: Lists compare element by element, Maps compare
// values key by key. Times compare by instant. A nil Value equals Null, and a
// key missing from a Map equals a key holding Null, as with entity attributes.
// Canonical encodings keep Null members, so two Equal maps may still hash
// differently.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}

	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Time:
		bv, ok := b.(Time)
		return ok && av.Time.Equal(bv.Time)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok {
			return false
		}
		for k, x := range av {
			if !Equal(x, bv[k]) {
				return false
			}
		}
		for k, y := range bv {
			if _, present := av[k]; !present && !IsNull(y) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case List:
		return val.Clone()
	case Map:
		return val.Clone()
	default:
		return v
	}
}

// Clone returns a deep copy of the list. A nil list stays nil.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, elem := range l {
		out[i] = Clone(elem)
	}
	return out
}

// Clone returns a deep copy of the map. A nil map stays nil.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, elem := range m {
		out[k] = Clone(elem)
	}
	return out
}
