package cap

// Capability is the kernel-held token a CSpace slot stores: a typed,
// rights-restricted, badged reference to an Object, plus the generation it
// was derived at so revocation can be detected without walking back to the
// object on every use when the fast path just wants a cheap staleness
// check.
type Capability struct {
	Object     *Object
	Rights     Rights
	Badge      uint64
	Generation uint64
}

// Valid reports whether the object has not been revoked since this
// capability's generation was captured.
func (c Capability) Valid() bool {
	return c.Object != nil && c.Object.Generation() == c.Generation
}

// NewRoot creates the first capability referring to obj, typically minted
// by the constructor that creates obj itself.
func NewRoot(obj *Object, rights Rights, badge uint64) Capability {
	return Capability{Object: obj, Rights: rights, Badge: badge, Generation: obj.Generation()}
}

// Derive produces a child capability with rights restricted to a subset of
// c's own, requiring DUPLICATE is not enough — callers needing GRANT must
// already hold it on c.
func (c Capability) Derive(requested Rights, keepGrant bool) (Capability, bool) {
	if !c.Rights.Has(RightGrant) {
		return Capability{}, false
	}
	return Capability{
		Object:     c.Object,
		Rights:     DeriveDefault(c.Rights, requested, keepGrant),
		Badge:      c.Badge,
		Generation: c.Object.Generation(),
	}, true
}

// Duplicate produces an identical-rights copy, permitted only when c
// itself carries DUPLICATE.
func (c Capability) Duplicate() (Capability, bool) {
	if !c.Rights.Has(RightDuplicate) {
		return Capability{}, false
	}
	return c, true
}
