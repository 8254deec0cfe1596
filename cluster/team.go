package cluster

import (
	"github.com/pgasrt/pgasrt/cmn"
	"github.com/pgasrt/pgasrt/transport"
)

// Team is an ordered set of PEs over which collectives (Barrier) are
// defined. A Team's local ranks (0..Size()-1) are what the Distribution
// Map addresses; they need not match world ranks once a strided
// sub-team is in play.
type Team struct {
	world   *World
	ranks   []int // world ranks, in team-local order
	barrier *transport.Barrier
}

func (t *Team) Size() int { return len(t.ranks) }

// WorldRank translates a team-local rank into its world rank.
func (t *Team) WorldRank(localRank int) int { return t.ranks[localRank] }

// LocalRank translates a world rank into this team's local rank,
// returning ok=false if worldRank is not a member (a TeamMismatch
// condition for the caller to report).
func (t *Team) LocalRank(worldRank int) (local int, ok bool) {
	for i, r := range t.ranks {
		if r == worldRank {
			return i, true
		}
	}
	return -1, false
}

// Contains reports team membership of a world rank.
func (t *Team) Contains(worldRank int) bool {
	_, ok := t.LocalRank(worldRank)
	return ok
}

// PE returns the PE handle for the given team-local rank.
func (t *Team) PE(localRank int) *PE { return t.world.PE(t.ranks[localRank]) }

// Barrier is the collective rendezvous and visibility fence: every
// team member must call Barrier exactly once per round; all remote
// operations submitted before the barrier by any member are observable
// after the barrier on every member.
func (t *Team) Barrier() { t.barrier.Wait() }

// CheckMember returns cmn's TeamMismatch error if worldRank is not part
// of this team.
func (t *Team) CheckMember(worldRank int) error {
	if !t.Contains(worldRank) {
		return cmn.NewTeamMismatch(worldRank)
	}
	return nil
}
