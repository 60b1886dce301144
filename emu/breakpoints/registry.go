package breakpoints

// Registry owns the breakpoints and memchecks collections.
type Registry struct {
	n   notifier
	bps *Collection[Breakpoint]
	mcs *Collection[MemCheck]
}

func NewRegistry() *Registry {
	reg := &Registry{}
	reg.bps = newCollection[Breakpoint]("breakpoint", &reg.n)
	reg.mcs = newCollection[MemCheck]("memcheck", &reg.n)
	return reg
}

func (reg *Registry) Breakpoints() *Collection[Breakpoint] { return reg.bps }
func (reg *Registry) MemChecks() *Collection[MemCheck]     { return reg.mcs }

// OnChange registers fn to be called after every successful mutation of the
// registry. fn is called on the goroutine performing the mutation, after the
// mutation is visible to readers. The returned function unregisters fn.
func (reg *Registry) OnChange(fn func()) (cancel func()) {
	return reg.n.subscribe(fn)
}

// BeginBatch starts a batch: change notifications are deferred until the
// returned function is called, at which point a single notification fires if
// anything changed. Batches nest, only the outermost end fires. Calling end
// more than once has no effect, so the usual pattern is:
//
//	end := reg.BeginBatch()
//	defer end()
func (reg *Registry) BeginBatch() (end func()) {
	return reg.n.begin()
}

// Batch runs fn inside a batch.
func (reg *Registry) Batch(fn func() error) error {
	end := reg.BeginBatch()
	defer end()
	return fn()
}

// Clear removes all breakpoints and memchecks, with a single notification.
func (reg *Registry) Clear() {
	end := reg.BeginBatch()
	defer end()

	reg.bps.Clear()
	reg.mcs.Clear()
}

// BreakpointAt returns the enabled breakpoint at pc, if any. It doesn't
// lock and is meant to be called by the execution engine.
func (reg *Registry) BreakpointAt(pc uint32) (Breakpoint, bool) {
	bp, ok := reg.bps.Get(pc)
	if !ok || !bp.Enabled {
		return Breakpoint{}, false
	}
	return bp, true
}

// MemCheckAt returns the first enabled memcheck covering addr and triggering
// on the given kind of access.
func (reg *Registry) MemCheckAt(addr uint32, write bool) (MemCheck, bool) {
	for mc := range reg.mcs.All() {
		if !mc.Enabled || !mc.Covers(addr) {
			continue
		}
		if (write && mc.OnWrite) || (!write && mc.OnRead) {
			return mc, true
		}
	}
	return MemCheck{}, false
}
