package utils

// Value dereferences v, returning the zero value for nil
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// NonZeroPtr is Ptr for set values and nil for the zero value, so optional
// wire fields are omitted rather than sent empty.
func NonZeroPtr[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
