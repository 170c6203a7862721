package audio

// Framer slices an arbitrary stream of samples into fixed-size frames.
// Samples that do not fill a frame are carried over into the next call and
// are never dropped or emitted early. Framer is not safe for concurrent use.
type Framer struct {
	size  int
	carry []int16
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{size: size}
}

func (f *Framer) Size() int {
	return f.size
}

// Frames prepends the carry-over to samples and returns every complete
// frame. The returned frames do not alias samples.
func (f *Framer) Frames(samples []int16) [][]int16 {
	buf := make([]int16, 0, len(f.carry)+len(samples))
	buf = append(buf, f.carry...)
	buf = append(buf, samples...)

	n := len(buf) / f.size
	frames := make([][]int16, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, buf[i*f.size:(i+1)*f.size:(i+1)*f.size])
	}

	rest := buf[n*f.size:]
	f.carry = append(f.carry[:0:0], rest...)
	return frames
}

func (f *Framer) Carry() int {
	return len(f.carry)
}

// Unread puts frames that could not be delivered back in front of the
// carry-over, in order, so the next Frames call emits them first.
func (f *Framer) Unread(frames [][]int16) {
	if len(frames) == 0 {
		return
	}
	n := len(f.carry)
	for _, fr := range frames {
		n += len(fr)
	}
	buf := make([]int16, 0, n)
	for _, fr := range frames {
		buf = append(buf, fr...)
	}
	f.carry = append(buf, f.carry...)
}

// Flush returns and clears the pending carry-over.
func (f *Framer) Flush() []int16 {
	out := f.carry
	f.carry = nil
	return out
}

func (f *Framer) Reset() {
	f.carry = nil
}
