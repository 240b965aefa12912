package discovery

import (
	"sort"
	"sync"
)

// Registry holds probed devices keyed by identity. It is safe for concurrent
// use; every read returns copies the caller owns.
type Registry struct {
	mu      sync.RWMutex
	devices map[DeviceID]Device
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{devices: make(map[DeviceID]Device)}
}

// Register inserts or replaces the record for d.ID. Devices without an ID are
// ignored.
func (r *Registry) Register(d Device) {
	if d.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.ID] = d.Clone()
}

// Unregister removes a device and reports whether it was present
func (r *Registry) Unregister(id DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return false
	}
	delete(r.devices, id)
	return true
}

// UnregisterFunc removes every device matching the predicate and returns how
// many were removed
func (r *Registry) UnregisterFunc(match func(Device) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, d := range r.devices {
		if match(d) {
			delete(r.devices, id)
			removed++
		}
	}
	return removed
}

// Device returns the record for id
func (r *Registry) Device(id DeviceID) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.Clone(), true
}

// Devices returns every record, sorted by ID
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d.Clone())
	}
	r.mu.RUnlock()

	sortDevices(devices)
	return devices
}

// Len returns the number of registered devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Groups derives the current groups, sorted by group ID. A groupId cluster
// with no leader or several leaders yields no group.
func (r *Registry) Groups() []Group {
	return DeriveGroups(r.Devices())
}

// Group derives a single group
func (r *Registry) Group(groupID string) (Group, bool) {
	r.mu.RLock()
	var cluster []Device
	for _, d := range r.devices {
		if d.Info.GroupID == groupID {
			cluster = append(cluster, d.Clone())
		}
	}
	r.mu.RUnlock()

	groups := DeriveGroups(cluster)
	if len(groups) != 1 {
		return Group{}, false
	}
	return groups[0], true
}

// DeriveGroups clusters devices by groupId and keeps clusters with exactly one
// leader. The input slice is not modified.
func DeriveGroups(devices []Device) []Group {
	clusters := make(map[string][]Device)
	for _, d := range devices {
		clusters[d.Info.GroupID] = append(clusters[d.Info.GroupID], d.Clone())
	}

	groups := make([]Group, 0, len(clusters))
	for id, members := range clusters {
		var leaders []Device
		for _, m := range members {
			if m.IsLeader() {
				leaders = append(leaders, m)
			}
		}
		if len(leaders) != 1 {
			continue
		}
		sortDevices(members)
		groups = append(groups, Group{ID: id, Leader: leaders[0].Clone(), Members: members})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
}
