package providers

import ort "github.com/yalue/onnxruntime_go"

// Values tracks the native tensors created for one run so they can be
// released together.
type Values struct {
	values []ort.Value
}

// Add tracks v and returns it.
func (s *Values) Add(v ort.Value) ort.Value {
	s.values = append(s.values, v)
	return v
}

// Destroy releases every tracked tensor.
func (s *Values) Destroy() {
	for _, v := range s.values {
		v.Destroy()
	}
	s.values = nil
}

// Len returns the number of tracked tensors.
func (s *Values) Len() int {
	return len(s.values)
}
