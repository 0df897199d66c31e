package procedure

import (
	"iter"
	"maps"
	"slices"
)

// Info is a snapshot of how one procedure is routed.
type Info struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
	Endpoint string `json:"endpoint,omitempty"`
	HasLocal bool   `json:"has_local"`
}

// List yields every known procedure in name order: routed ones and
// local-only ones.
func (r *Router) List() iter.Seq[Info] {
	return func(yield func(Info) bool) {
		r.mu.RLock()
		names := make(map[string]struct{}, len(r.routeSnap)+len(r.localHandlers))
		for name := range r.routeSnap {
			names[name] = struct{}{}
		}
		for name := range r.localHandlers {
			names[name] = struct{}{}
		}
		infos := make([]Info, 0, len(names))
		for _, name := range slices.Sorted(maps.Keys(names)) {
			info, _ := r.inspectLocked(name)
			infos = append(infos, info)
		}
		r.mu.RUnlock()

		for _, info := range infos {
			if !yield(info) {
				return
			}
		}
	}
}

// Inspect returns routing details for one procedure.
func (r *Router) Inspect(procedure string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inspectLocked(procedure)
}

func (r *Router) inspectLocked(procedure string) (Info, bool) {
	rt, hasRoute := r.routeSnap[procedure]
	_, hasLocal := r.localHandlers[procedure]
	if !hasRoute && !hasLocal {
		return Info{}, false
	}
	info := Info{Name: procedure, HasLocal: hasLocal, Strategy: StrategyLocal}
	if hasRoute {
		info.Strategy = rt.Strategy
		info.Endpoint = rt.Endpoint
	}
	return info, true
}
