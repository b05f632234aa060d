package platform

// Handle records, at the point a reference is obtained, whether the holder
// must release it. Callback arguments are Borrowed; everything a getter hands
// back is Owned.
type Handle[T Object] struct {
	obj   T
	owned bool
	valid bool
}

// Owned wraps a reference the holder must release.
func Owned[T Object](obj T) Handle[T] {
	return Handle[T]{obj: obj, owned: true, valid: !isNil(obj)}
}

// Borrowed wraps a reference someone else will release.
func Borrowed[T Object](obj T) Handle[T] {
	return Handle[T]{obj: obj, valid: !isNil(obj)}
}

// Get returns the wrapped reference.
func (h Handle[T]) Get() T { return h.obj }

// Valid reports whether the handle holds a reference.
func (h Handle[T]) Valid() bool { return h.valid }

// IsOwned reports whether Release will release the reference.
func (h Handle[T]) IsOwned() bool { return h.owned }

// Release drops the reference, releasing it only when owned. The handle is
// empty afterwards and Release may be called again.
func (h *Handle[T]) Release() {
	if h.valid && h.owned {
		h.obj.Release()
	}
	var zero T
	*h = Handle[T]{obj: zero}
}

func isNil(obj any) bool {
	return obj == nil
}

// ReleaseAll releases every object in objs.
func ReleaseAll[T Object](objs []T) {
	for _, o := range objs {
		if !isNil(o) {
			o.Release()
		}
	}
}
