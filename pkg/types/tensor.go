package types

import "fmt"

// Tensor is a dense row-major float32 array
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zero-filled tensor
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, n),
	}
}

// Index converts a multi-dimensional index into an offset into Data.
// Trailing dimensions may be omitted, in which case they are treated as 0.
func (t *Tensor) Index(idx ...int) int {
	if len(idx) > len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for %d dims", len(idx), len(t.Shape)))
	}
	off := 0
	for d := range t.Shape {
		off *= t.Shape[d]
		if d < len(idx) {
			if idx[d] < 0 || idx[d] >= t.Shape[d] {
				panic(fmt.Sprintf("tensor: index %d out of range for dim %d (%d)", idx[d], d, t.Shape[d]))
			}
			off += idx[d]
		}
	}
	return off
}

// At returns the element at idx
func (t *Tensor) At(idx ...int) float32 {
	return t.Data[t.Index(idx...)]
}

// Set writes the element at idx
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[t.Index(idx...)] = v
}

// Stride returns the number of elements spanned by one step of dimension d
func (t *Tensor) Stride(d int) int {
	s := 1
	for i := d + 1; i < len(t.Shape); i++ {
		s *= t.Shape[i]
	}
	return s
}

// Batch holds the arrays produced for one list of windows. Only the requested
// fields are non-nil.
type Batch struct {
	Images      *Tensor // [E, T, H, W, 3]
	Foreground  *Tensor // [E, T, H, W, 1]
	Orientation *Tensor // [E, T, H, W, 8]
	Boxes       *Tensor // [E, T, 4]
	Presence    *Tensor // [E, T]
}

// Get returns the tensor for a field, or nil when it was not requested
func (b *Batch) Get(f Field) *Tensor {
	switch f {
	case FieldImage:
		return b.Images
	case FieldForeground:
		return b.Foreground
	case FieldOrientation:
		return b.Orientation
	case FieldBox:
		return b.Boxes
	case FieldPresence:
		return b.Presence
	}
	return nil
}

// Map returns the non-nil fields keyed by their names ("x", "fg", ...)
func (b *Batch) Map() map[string]*Tensor {
	m := map[string]*Tensor{}
	for _, f := range AllFields.List() {
		if t := b.Get(f); t != nil {
			m[f.String()] = t
		}
	}
	return m
}
