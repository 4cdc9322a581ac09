//go:build !unix

package sampler

type unsupportedReader struct{}

// NewProcessReader returns a Reader that always fails; every sample is
// skipped on this platform.
func NewProcessReader() Reader {
	return unsupportedReader{}
}

func (unsupportedReader) Read() (Usage, error) {
	return Usage{}, ErrUnsupported
}
