package netobject

import "github.com/roach88/netcore/internal/slots"

// Object is a networked object occupying one allocator slot. Its id is the
// slot id and stays fixed for the object's lifetime.
type Object struct {
	slots.Slot[*Object]

	Kind    string
	Owner   string
	State   []byte
	Version uint64
}

func (o *Object) reset() {
	o.Kind = ""
	o.Owner = ""
	o.State = nil
	o.Version = 0
}

// Info is a copy of an object's fields, safe to hold after the registry
// lock is released.
type Info struct {
	ID      uint32
	Kind    string
	Owner   string
	State   []byte
	Version uint64
}

func (o *Object) info() Info {
	var state []byte
	if o.State != nil {
		state = append([]byte(nil), o.State...)
	}
	return Info{
		ID:      o.ID(),
		Kind:    o.Kind,
		Owner:   o.Owner,
		State:   state,
		Version: o.Version,
	}
}
