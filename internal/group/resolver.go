package group

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mjcumming/wiimd/internal/poller"
	"github.com/mjcumming/wiimd/internal/wiim"
)

// Resolve recomputes the full group topology from the current set of
// published device states. It is a pure function of its input: no state is
// carried between cycles, so the topology can never drift from the
// device reports by more than one poll interval.
//
// Role policy, per device:
//  1. Non-empty own slave-list report -> master.
//  2. Else a master_uuid/guest-type hint -> guest, but only if the named
//     master's own report currently lists this device. Membership is
//     authoritative from the master's report, never from the guest's
//     self-claim, because a guest can retain a stale master_uuid after
//     being kicked.
//  3. Else solo.
//
// Unavailable devices are excluded from the input entirely: they are
// removed from member lists and keep no resolved role.
func Resolve(states map[string]poller.DeviceState) Topology {
	topo := Topology{
		Roles:  make(map[string]ResolvedRole),
		Groups: make(map[string]Group),
	}

	// Only devices with a current snapshot participate. Devices that are
	// Unavailable keep their last snapshot in the store but are excluded
	// here; observers display their last known role as stale.
	available := make(map[string]poller.DeviceState)
	unavailableUUIDs := make(map[string]bool)
	unavailableHosts := make(map[string]bool)
	for host, st := range states {
		// Unavailable is checked before the snapshot: a device that never
		// completed a poll has no snapshot but must still be scrubbed from
		// member lists, by host when its UUID was never learned.
		if st.Availability == poller.AvailabilityUnavailable {
			if st.Identity.UUID != "" {
				unavailableUUIDs[st.Identity.UUID] = true
			}
			unavailableHosts[host] = true
			continue
		}
		if st.Snapshot == nil {
			continue
		}
		available[host] = st
	}

	hosts := make([]string, 0, len(available))
	for host := range available {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	// Pass 1: masters, from each device's own filtered slave list.
	memberLists := make(map[string][]wiim.SlaveInfo) // master host -> live guests
	uuidToHost := make(map[string]string)
	for _, host := range hosts {
		st := available[host]
		uuidToHost[st.Identity.UUID] = host

		if st.Slaves == nil {
			continue
		}
		live := make([]wiim.SlaveInfo, 0, len(st.Slaves.Slaves))
		for _, slave := range st.Slaves.Slaves {
			if unavailableUUIDs[slave.UUID] || unavailableHosts[slave.IP] {
				continue
			}
			live = append(live, slave)
		}
		if len(live) > 0 {
			memberLists[host] = live
			topo.Roles[host] = ResolvedRole{Role: RoleMaster}
		}
	}

	// Pass 2: guests and solos.
	for _, host := range hosts {
		if _, isMaster := memberLists[host]; isMaster {
			continue
		}
		st := available[host]

		hint := st.Snapshot.MasterUUID
		if hint == "" && st.Slaves != nil {
			hint = st.Slaves.MasterUUID
		}

		if hint == "" && !st.Snapshot.GuestHint {
			topo.Roles[host] = ResolvedRole{Role: RoleSolo}
			continue
		}

		masterHost, confirmed := confirmMembership(host, st, hint, uuidToHost, memberLists, available)
		if !confirmed {
			log.Warn().
				Str("host", host).
				Str("claimed_master", hint).
				Msg("Guest self-claim not confirmed by any master, resolving as solo")
			topo.Roles[host] = ResolvedRole{Role: RoleSolo}
			continue
		}
		topo.Roles[host] = ResolvedRole{
			Role:       RoleGuest,
			MasterUUID: available[masterHost].Identity.UUID,
		}
	}

	// Build the group views.
	for masterHost, live := range memberLists {
		st := available[masterHost]
		g := Group{
			Master: Member{
				UUID:        st.Identity.UUID,
				Host:        masterHost,
				Name:        st.Identity.Name,
				VolumeLevel: st.Snapshot.VolumeLevel,
				Mute:        st.Snapshot.Mute,
				Channel:     wiim.ChannelStereo,
			},
		}
		for _, slave := range live {
			g.Guests = append(g.Guests, memberFor(slave, uuidToHost, available))
		}
		topo.Groups[st.Identity.UUID] = g
	}

	return topo
}

// confirmMembership checks the guest's claim against the masters' own
// reports: the claimed master must itself currently list this device.
func confirmMembership(host string, st poller.DeviceState, hint string, uuidToHost map[string]string, memberLists map[string][]wiim.SlaveInfo, available map[string]poller.DeviceState) (string, bool) {
	candidates := make([]string, 0, 1)
	if masterHost, ok := uuidToHost[hint]; ok {
		candidates = append(candidates, masterHost)
	} else if hint == "" {
		// Guest-type hint without a master reference: accept any master
		// that lists this device.
		for masterHost := range memberLists {
			candidates = append(candidates, masterHost)
		}
		sort.Strings(candidates)
	}

	for _, masterHost := range candidates {
		for _, slave := range memberLists[masterHost] {
			if slave.UUID == st.Identity.UUID || slave.IP == host {
				return masterHost, true
			}
		}
	}
	return "", false
}

// memberFor builds the member view for a slave entry. Managed guests use
// their own current snapshot for volume/mute; unmanaged ones fall back to
// the values the master reported for them.
func memberFor(slave wiim.SlaveInfo, uuidToHost map[string]string, available map[string]poller.DeviceState) Member {
	member := Member{
		UUID:        slave.UUID,
		Host:        slave.IP,
		Name:        slave.Name,
		VolumeLevel: slave.VolumeLevel,
		Mute:        slave.Mute,
		Channel:     slave.Channel,
	}
	if host, ok := uuidToHost[slave.UUID]; ok {
		if st, ok := available[host]; ok {
			member.Host = host
			member.VolumeLevel = st.Snapshot.VolumeLevel
			member.Mute = st.Snapshot.Mute
		}
	}
	return member
}
