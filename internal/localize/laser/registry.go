package laser

// Registry caches one Profile per sensor frame id for the lifetime of the
// process. The first registration for a frame id wins.
//
// Registry is not safe for concurrent use; it is owned by the single
// dispatch loop that handles scans.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

// GetOrCreate returns the profile registered for frameID, creating it from
// the given parameters if none exists. Parameters of later calls are ignored
// for a known frame id. No sanity checks are applied.
func (r *Registry) GetOrCreate(frameID string, minRange, maxRange, minAngle, maxAngle, angleIncrement float64) Profile {
	if p, ok := r.profiles[frameID]; ok {
		return p
	}
	p := Profile{
		FrameID:           frameID,
		MinRange:          minRange,
		MaxRange:          maxRange,
		MinAngle:          minAngle,
		MaxAngle:          maxAngle,
		AngularResolution: angleIncrement,
	}
	r.profiles[frameID] = p
	return p
}

// ForScan registers (or fetches) the profile described by a scan header.
func (r *Registry) ForScan(s Scan) Profile {
	return r.GetOrCreate(s.FrameID, s.RangeMin, s.RangeMax, s.AngleMin, s.AngleMax, s.AngleIncrement)
}

// Lookup returns the profile for frameID if one was registered.
func (r *Registry) Lookup(frameID string) (Profile, bool) {
	p, ok := r.profiles[frameID]
	return p, ok
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int { return len(r.profiles) }
