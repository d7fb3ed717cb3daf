package stl

import (
	"strings"

	"stdview/errors"
	"stdview/layout"
	"stdview/memory"
	"stdview/typeinfo"
)

// countedLayout is shared by std::shared_ptr and std::weak_ptr: both hold a
// payload pointer and a pointer to the same control block.
type countedLayout struct {
	toolchain string
	ptr       pointerField
	control   pointerField
	uses      intField
	weaks     intField
	// adjust turns a stored count into the live count callers see.
	adjust func(stored int64) int64
	// vtableBias is the distance from a control block's vtable pointer back
	// to the start of its vtable symbol.
	vtableBias uint64
}

func liveCount(stored int64) int64 {
	return stored
}

// zeroBasedCount undoes libc++ storing owners minus one.
func zeroBasedCount(stored int64) int64 {
	return stored + 1
}

type countedSpec struct {
	toolchain  string
	ptr        []string
	control    []string
	uses       []string
	weaks      []string
	adjust     func(int64) int64
	vtableBias func(ptrSize int64) uint64
}

var countedSpecs = []countedSpec{
	{
		toolchain:  MSVC,
		ptr:        path("_Ptr"),
		control:    path("_Rep"),
		uses:       path("_Uses"),
		weaks:      path("_Weaks"),
		adjust:     liveCount,
		vtableBias: func(int64) uint64 { return 0 },
	},
	{
		toolchain:  LibStdCpp,
		ptr:        path("_M_ptr"),
		control:    path("_M_refcount", "_M_pi"),
		uses:       path("_M_use_count"),
		weaks:      path("_M_weak_count"),
		adjust:     liveCount,
		vtableBias: itaniumVtableBias,
	},
	{
		toolchain:  LibCpp,
		ptr:        path("__ptr_"),
		control:    path("__cntrl_"),
		uses:       path("__shared_owners_"),
		weaks:      path("__shared_weak_owners_"),
		adjust:     zeroBasedCount,
		vtableBias: itaniumVtableBias,
	},
}

// itaniumVtableBias skips the offset-to-top and typeinfo slots that precede
// the address stored in an object's vtable pointer.
func itaniumVtableBias(ptrSize int64) uint64 {
	return uint64(2 * ptrSize)
}

func verifyCounted(spec countedSpec) func(typeinfo.Type) (countedLayout, error) {
	return func(t typeinfo.Type) (countedLayout, error) {
		ptr, err := lookupPointer(t, spec.ptr)
		if err != nil {
			return countedLayout{}, err
		}
		control, err := lookupPointer(t, spec.control)
		if err != nil {
			return countedLayout{}, err
		}
		uses, err := lookupInt(control.elem, spec.uses)
		if err != nil {
			return countedLayout{}, err
		}
		weaks, err := lookupInt(control.elem, spec.weaks)
		if err != nil {
			return countedLayout{}, err
		}
		return countedLayout{
			toolchain:  spec.toolchain,
			ptr:        ptr,
			control:    control,
			uses:       uses,
			weaks:      weaks,
			adjust:     spec.adjust,
			vtableBias: spec.vtableBias(control.width),
		}, nil
	}
}

func countedCandidates[V any](open func(memory.Remote, countedLayout) V) []layout.Candidate[countedLayout, V] {
	cs := make([]layout.Candidate[countedLayout, V], 0, len(countedSpecs))
	for _, spec := range countedSpecs {
		cs = append(cs, layout.Candidate[countedLayout, V]{
			Toolchain: spec.toolchain,
			Verify:    verifyCounted(spec),
			Open:      open,
		})
	}
	return cs
}

var (
	sharedPtrs = layout.New("shared_ptr", countedCandidates(newSharedPtr)...)
	weakPtrs   = layout.New("weak_ptr", countedCandidates(newWeakPtr)...)
)

// allocationRule names the control block types a toolchain uses when the
// payload lives in the same allocation as the counts (std::make_shared).
type allocationRule struct {
	toolchain string
	prefixes  []string
}

var embeddedAllocationRules = []allocationRule{
	{toolchain: MSVC, prefixes: []string{"std::_Ref_count_obj<", "std::_Ref_count_obj2<", "std::_Ref_count_obj_alloc<", "std::_Ref_count_obj_alloc3<"}},
	{toolchain: LibStdCpp, prefixes: []string{"std::_Sp_counted_ptr_inplace<"}},
	{toolchain: LibCpp, prefixes: []string{"std::__1::__shared_ptr_emplace<", "std::__shared_ptr_emplace<"}},
}

func embeddedAllocation(toolchain, controlType string) bool {
	for _, rule := range embeddedAllocationRules {
		if rule.toolchain != toolchain {
			continue
		}
		for _, prefix := range rule.prefixes {
			if strings.HasPrefix(controlType, prefix) {
				return true
			}
		}
	}
	return false
}

// vtableOwner extracts the class name from a vtable symbol in either the
// MSVC ("const Foo::`vftable'") or Itanium ("vtable for Foo") spelling.
func vtableOwner(symbol string) string {
	name := strings.TrimPrefix(symbol, "vtable for ")
	name = strings.TrimPrefix(name, "const ")
	name = strings.TrimSuffix(name, "::`vftable'")
	return strings.TrimSpace(name)
}

// counted is the part shared by the two pointer views.
type counted struct {
	r     memory.Remote
	facts countedLayout
}

func (c *counted) ElementType() typeinfo.Type {
	return c.facts.ptr.elem
}

func (c *counted) payload() (uint64, error) {
	return c.facts.ptr.read(c.r.Process, c.r.Address)
}

func (c *counted) controlBlock() (uint64, error) {
	return c.facts.control.read(c.r.Process, c.r.Address)
}

func (c *counted) count(f intField) (int64, error) {
	block, err := c.controlBlock()
	if err != nil || block == 0 {
		return 0, err
	}
	stored, err := f.int(c.r.Process, block)
	if err != nil {
		return 0, err
	}
	return c.facts.adjust(stored), nil
}

// SharedCount is the number of strong owners.
func (c *counted) SharedCount() (int64, error) {
	return c.count(c.facts.uses)
}

// WeakCount is the weak count as the toolchain keeps it.
func (c *counted) WeakCount() (int64, error) {
	return c.count(c.facts.weaks)
}

// IsCreatedWithMakeShared reports whether the payload shares its allocation
// with the control block. The control block's dynamic type decides; it is
// recovered from the symbol its vtable pointer lands on.
func (c *counted) IsCreatedWithMakeShared() (bool, error) {
	block, err := c.controlBlock()
	if err != nil || block == 0 {
		return false, err
	}
	p := c.r.Process
	vptr, err := p.ReadPointer(block)
	if err != nil {
		return false, err
	}
	symbol, err := p.SymbolName(vptr - c.facts.vtableBias)
	if err != nil {
		return false, err
	}
	return embeddedAllocation(c.facts.toolchain, vtableOwner(symbol)), nil
}

func (c *counted) deref() (memory.Remote, error) {
	addr, err := c.payload()
	if err != nil {
		return memory.Remote{}, err
	}
	if addr == 0 {
		return memory.Remote{}, errors.ErrNullPointer
	}
	return c.r.At(c.facts.ptr.elem, addr), nil
}

// SharedPtr is a view over a std::shared_ptr.
type SharedPtr struct {
	counted
}

func OpenSharedPtr(r memory.Remote) (*SharedPtr, error) {
	return sharedPtrs.Open(r)
}

func newSharedPtr(r memory.Remote, facts countedLayout) *SharedPtr {
	return &SharedPtr{counted{r: r, facts: facts}}
}

// IsEmpty looks at the payload pointer only.
func (s *SharedPtr) IsEmpty() (bool, error) {
	addr, err := s.payload()
	if err != nil {
		return false, err
	}
	return addr == 0, nil
}

func (s *SharedPtr) Element() (memory.Remote, error) {
	return s.deref()
}

// WeakPtr is a view over a std::weak_ptr.
type WeakPtr struct {
	counted
}

func OpenWeakPtr(r memory.Remote) (*WeakPtr, error) {
	return weakPtrs.Open(r)
}

func newWeakPtr(r memory.Remote, facts countedLayout) *WeakPtr {
	return &WeakPtr{counted{r: r, facts: facts}}
}

// IsEmpty is true for a null payload or an expired object.
func (w *WeakPtr) IsEmpty() (bool, error) {
	addr, err := w.payload()
	if err != nil {
		return false, err
	}
	if addr == 0 {
		return true, nil
	}
	uses, err := w.SharedCount()
	if err != nil {
		return false, err
	}
	return uses == 0, nil
}

// Element dereferences the payload if at least one strong owner remains.
func (w *WeakPtr) Element() (memory.Remote, error) {
	uses, err := w.SharedCount()
	if err != nil {
		return memory.Remote{}, err
	}
	if uses == 0 {
		return memory.Remote{}, errors.ErrDanglingAccess
	}
	return w.deref()
}

// UnsafeElement dereferences the payload without checking the strong
// count. The object may already be destroyed.
func (w *WeakPtr) UnsafeElement() (memory.Remote, error) {
	return w.deref()
}
