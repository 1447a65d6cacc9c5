package testutil

// ConstantReader is an io.Reader that fills every read with the same byte.
//
// Confirmation numbers drawn from it are identical across runs, which keeps
// golden snapshots stable.
type ConstantReader byte

// Read fills p with the constant byte. It never fails.
func (r ConstantReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}
