package group

// Role is a device's resolved group role.
type Role string

const (
	RoleMaster Role = "master"
	RoleGuest  Role = "guest"
	RoleSolo   Role = "solo"
)

// Member is one device inside a resolved group with its per-member
// volume/mute as reported this cycle.
type Member struct {
	UUID        string
	Host        string
	Name        string
	VolumeLevel float64
	Mute        bool
	Channel     int
}

// Group is one resolved multiroom group. A group exists exactly as long as
// its master reports at least one live guest.
type Group struct {
	Master Member
	Guests []Member // ordered as the master reports them
}

// Members returns master plus guests in report order.
func (g Group) Members() []Member {
	out := make([]Member, 0, len(g.Guests)+1)
	out = append(out, g.Master)
	out = append(out, g.Guests...)
	return out
}

// Muted reports the aggregated group mute state: true only if every current
// member individually reports mute.
func (g Group) Muted() bool {
	for _, m := range g.Members() {
		if !m.Mute {
			return false
		}
	}
	return true
}

// ResolvedRole is the per-device resolution result.
type ResolvedRole struct {
	Role Role
	// MasterUUID is set for guests: the confirmed owning master.
	MasterUUID string
}

// Topology is the derived mapping of device to role plus the set of
// resolved groups, keyed by master UUID. It is recomputed in full on every
// poll cycle and never independently mutated.
type Topology struct {
	// Roles is keyed by device host (the stable management key).
	Roles map[string]ResolvedRole
	// Groups is keyed by master UUID.
	Groups map[string]Group
}

// RoleOf returns the resolved role for a managed device host. Unknown
// devices resolve as solo.
func (t Topology) RoleOf(host string) ResolvedRole {
	if r, ok := t.Roles[host]; ok {
		return r
	}
	return ResolvedRole{Role: RoleSolo}
}

// GroupOf returns the group led by the master with the given UUID.
func (t Topology) GroupOf(masterUUID string) (Group, bool) {
	g, ok := t.Groups[masterUUID]
	return g, ok
}

// GroupLedBy returns the group whose master is the given host.
func (t Topology) GroupLedBy(host string) (Group, bool) {
	for _, g := range t.Groups {
		if g.Master.Host == host {
			return g, true
		}
	}
	return Group{}, false
}
