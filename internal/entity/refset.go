package entity

import (
	"slices"
)

// RefSet is an ordered collection of references that holds at most one
// reference per identity (IsEqual). It backs hasMany relationships.
//
// Membership is checked against current identities on every call, so a
// member that gains a server id after insertion is still found.
type RefSet struct {
	refs     []Ref
	onChange func()
}

// NewRefSet builds a set from refs, dropping nil refs and identity duplicates.
func NewRefSet(refs ...Ref) *RefSet {
	s := &RefSet{}
	for _, r := range refs {
		s.add(r)
	}
	return s
}

// Len returns the number of members.
func (s *RefSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// At returns the i-th member.
func (s *RefSet) At(i int) Ref {
	return s.refs[i]
}

// All returns a copy of the members in order.
func (s *RefSet) All() []Ref {
	if s == nil {
		return nil
	}
	return slices.Clone(s.refs)
}

// IndexOf returns the position of the member identity-equal to r, or -1.
func (s *RefSet) IndexOf(r Ref) int {
	if s == nil {
		return -1
	}
	return slices.IndexFunc(s.refs, func(m Ref) bool { return IsEqual(m, r) })
}

// Contains reports whether a member is identity-equal to r.
func (s *RefSet) Contains(r Ref) bool {
	return s.IndexOf(r) >= 0
}

// Add appends r unless an identity-equal member is present.
// Reports whether the set changed.
func (s *RefSet) Add(r Ref) bool {
	if !s.add(r) {
		return false
	}
	s.changed()
	return true
}

// Remove deletes the member identity-equal to r. Reports whether the set changed.
func (s *RefSet) Remove(r Ref) bool {
	i := s.IndexOf(r)
	if i < 0 {
		return false
	}
	s.refs = slices.Delete(s.refs, i, i+1)
	s.changed()
	return true
}

// Replace sets the members to refs, deduplicated, as one change.
func (s *RefSet) Replace(refs ...Ref) {
	s.refs = nil
	for _, r := range refs {
		s.add(r)
	}
	s.changed()
}

func (s *RefSet) add(r Ref) bool {
	if isNilRef(r) || s.Contains(r) {
		return false
	}
	s.refs = append(s.refs, r)
	return true
}

func (s *RefSet) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// identitySet is the working set used by Diff: members indexed by client id
// and by id so that lookups check only candidates that can be IsEqual.
type identitySet struct {
	refs       []Ref
	live       []bool
	byClientID map[string][]int
	byID       map[string][]int
	remaining  int
}

func newIdentitySet(refs []Ref) *identitySet {
	s := &identitySet{
		byClientID: make(map[string][]int),
		byID:       make(map[string][]int),
	}
	for _, r := range refs {
		if isNilRef(r) || s.find(r) >= 0 {
			continue
		}
		s.insert(r)
	}
	return s
}

func (s *identitySet) insert(r Ref) {
	i := len(s.refs)
	s.refs = append(s.refs, r)
	s.live = append(s.live, true)
	if cid := r.ClientID(); cid != "" {
		s.byClientID[cid] = append(s.byClientID[cid], i)
	}
	s.byID[r.ID()] = append(s.byID[r.ID()], i)
	s.remaining++
}

// find returns the lowest live index identity-equal to r, or -1.
//
// IsEqual(m, r) holds only when the client ids are equal or the ids are
// equal, so the two buckets cover every possible match.
func (s *identitySet) find(r Ref) int {
	best := -1
	check := func(candidates []int) {
		for _, i := range candidates {
			if s.live[i] && (best < 0 || i < best) && IsEqual(s.refs[i], r) {
				best = i
			}
		}
	}
	if cid := r.ClientID(); cid != "" {
		check(s.byClientID[cid])
	}
	check(s.byID[r.ID()])
	return best
}

func (s *identitySet) remove(i int) {
	if s.live[i] {
		s.live[i] = false
		s.remaining--
	}
}
