package pm

// Denylist holds device names excluded from suspend bookkeeping on the
// deployed hardware. A listed device never joins the topology lists and is
// never reordered; its driver can still manage its power independently,
// the engine simply does not see it.
//
// Entries are plain device names compared exactly. The list is loaded from
// configuration so sites can extend it without a rebuild.
type Denylist struct {
	names map[string]struct{}
}

// NewDenylist builds a denylist from a slice of device names. A nil or
// empty slice yields a list that matches nothing.
func NewDenylist(names []string) *Denylist {
	d := &Denylist{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		d.names[n] = struct{}{}
	}
	return d
}

// Contains reports whether the named device is on the list.
func (d *Denylist) Contains(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.names[name]
	return ok
}

// Len returns the number of entries.
func (d *Denylist) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}
