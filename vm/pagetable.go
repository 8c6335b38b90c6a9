// Package vm implements the page-table and frame-management core of a
// software MMU: two-level page tables, reference-counted frame allocation,
// and copy-on-write process forking.
package vm

// A PTE describes how one virtual page is backed.
type PTE struct {
	// Valid reports whether the page is currently mapped.
	Valid bool

	// Writable reports whether write access is currently permitted.
	Writable bool

	// Private marks a copy-on-write protected mapping: the page was
	// writable before it was shared, and a write must re-establish
	// exclusive ownership before it is allowed again.
	Private bool

	// Frame is the backing frame index. Meaningful only when Valid.
	Frame int
}

// A Directory is one second-level block of PTEs.
type Directory struct {
	ptes []PTE
}

func newDirectory(numPTEs int) *Directory {
	return &Directory{ptes: make([]PTE, numPTEs)}
}

// A PageTable is a sparse two-level table of PTEs. Directories are
// allocated on first use and never freed; only entry-level invalidation
// happens.
type PageTable struct {
	directories      []*Directory
	ptesPerDirectory int
	numPages         uint64
}

// NewPageTable creates an empty page table for the given geometry.
func NewPageTable(config Config) *PageTable {
	return &PageTable{
		directories:      make([]*Directory, config.numDirectories()),
		ptesPerDirectory: config.PTEsPerDirectory,
		numPages:         uint64(config.NumPages),
	}
}

// split breaks a virtual page number into its (directory, entry) indices.
// Only valid for a vpn the table covers.
func (t *PageTable) split(vpn uint64) (int, int) {
	return int(vpn) / t.ptesPerDirectory, int(vpn) % t.ptesPerDirectory
}

// covers reports whether vpn falls inside the table's address space. The
// comparison stays in uint64 space so an arbitrarily large vpn from the
// driver is rejected rather than truncated.
func (t *PageTable) covers(vpn uint64) bool {
	return vpn < t.numPages
}

// Entry returns a copy of the PTE for vpn. The bool is false when the
// covering directory has never been allocated or vpn is out of range.
func (t *PageTable) Entry(vpn uint64) (PTE, bool) {
	pte := t.lookup(vpn)
	if pte == nil {
		return PTE{}, false
	}
	return *pte, true
}

// lookup returns the PTE for vpn without allocating, or nil if the
// covering directory is absent.
func (t *PageTable) lookup(vpn uint64) *PTE {
	if !t.covers(vpn) {
		return nil
	}

	dirIndex, pteIndex := t.split(vpn)
	dir := t.directories[dirIndex]
	if dir == nil {
		return nil
	}

	return &dir.ptes[pteIndex]
}

// entryForWrite returns the PTE for vpn, allocating the covering directory
// if it does not exist yet. Returns nil only when vpn is out of range.
func (t *PageTable) entryForWrite(vpn uint64) *PTE {
	if !t.covers(vpn) {
		return nil
	}

	dirIndex, pteIndex := t.split(vpn)
	if t.directories[dirIndex] == nil {
		t.directories[dirIndex] = newDirectory(t.ptesPerDirectory)
	}

	return &t.directories[dirIndex].ptes[pteIndex]
}

// directory returns the directory at the given first-level index, or nil.
func (t *PageTable) directory(dirIndex int) *Directory {
	return t.directories[dirIndex]
}

// ensureDirectory returns the directory at the given first-level index,
// allocating it if absent.
func (t *PageTable) ensureDirectory(dirIndex int) *Directory {
	if t.directories[dirIndex] == nil {
		t.directories[dirIndex] = newDirectory(t.ptesPerDirectory)
	}
	return t.directories[dirIndex]
}

// NumDirectories returns the number of first-level slots.
func (t *PageTable) NumDirectories() int {
	return len(t.directories)
}

// HasDirectory reports whether the directory at the given first-level
// index has been allocated.
func (t *PageTable) HasDirectory(dirIndex int) bool {
	return t.directories[dirIndex] != nil
}
