package vm

import "fmt"

// NoFrame is the frame index returned when allocation fails.
const NoFrame = -1

// A FrameTable tracks, for every physical frame, how many valid PTEs
// across all processes currently reference it. It is shared by every
// process of one MMU instance.
type FrameTable struct {
	refCounts []int
}

// NewFrameTable creates a frame table with numFrames free frames.
func NewFrameTable(numFrames int) *FrameTable {
	return &FrameTable{refCounts: make([]int, numFrames)}
}

// NumFrames returns the number of physical frames.
func (f *FrameTable) NumFrames() int {
	return len(f.refCounts)
}

// RefCount returns the number of valid mappings of the given frame.
func (f *FrameTable) RefCount(frame int) int {
	return f.refCounts[frame]
}

// FindFree returns the lowest-indexed frame with no mappings. The bool is
// false when every frame is referenced. The scan is bounded by the frame
// count.
func (f *FrameTable) FindFree() (int, bool) {
	for frame, count := range f.refCounts {
		if count == 0 {
			return frame, true
		}
	}
	return NoFrame, false
}

// Retain adds one mapping to the given frame.
func (f *FrameTable) Retain(frame int) {
	f.refCounts[frame]++
}

// Release removes one mapping from the given frame. A frame shared by
// several page tables stays allocated until its last mapping is released.
func (f *FrameTable) Release(frame int) {
	if f.refCounts[frame] == 0 {
		panic(fmt.Sprintf("refcount underflow on frame %d", frame))
	}
	f.refCounts[frame]--
}

// FramesInUse returns the number of frames with at least one mapping.
func (f *FrameTable) FramesInUse() int {
	inUse := 0
	for _, count := range f.refCounts {
		if count > 0 {
			inUse++
		}
	}
	return inUse
}
