package ds

import (
	"fmt"

	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
)

// ErrTransitionDenied reports that sender lacked the authority to perform a
// role transition — it was not itself a Regular member of the group at the
// time the transition was attempted.
type ErrTransitionDenied struct {
	Sender uint32
	Target uint32
}

func (e *ErrTransitionDenied) Error() string {
	return fmt.Sprintf("ds: leaf %d lacks authority to transition leaf %d", e.Sender, e.Target)
}

// applyRoleTransitions mutates roles in place for one processed commit's
// adds and removes, per the specification's role-transition rule: every
// added member becomes Regular, every removed member becomes Outsider, and
// the sender must already hold Regular standing to perform any transition
// at all. senderLeaf is ignored for the group's very first commit (the
// creator transitioning itself in from nothing).
//
// A resync (external commit with Sender == SenderNewMemberCommit) is the one
// other case senderLeaf's own role can't answer the authority question: the
// new leaf index the resync lands on has no entry in roles yet, so looking
// it up would always read the zero value (RoleOutsider) and deny a
// legitimate resync. Its authority instead comes from replacedLeaf, the
// prior leaf the resyncing client is reclaiming — the same member
// reconnecting under a new leaf, not a different principal. On success the
// new leaf inherits replacedLeaf's role before the removed-leaves loop below
// retires replacedLeaf to Outsider.
func applyRoleTransitions(roles map[uint32]groupstate.Role, senderLeaf uint32, isBootstrap, isResync bool, replacedLeaf uint32, added []uint32, removed []uint32) error {
	switch {
	case isBootstrap:
		// Creator transitioning itself in from nothing: nothing to check yet.
	case isResync:
		if roles[replacedLeaf] != groupstate.RoleRegular {
			return &ErrTransitionDenied{Sender: replacedLeaf, Target: replacedLeaf}
		}
		roles[senderLeaf] = roles[replacedLeaf]
	default:
		if roles[senderLeaf] != groupstate.RoleRegular {
			return &ErrTransitionDenied{Sender: senderLeaf, Target: senderLeaf}
		}
	}

	for _, leaf := range added {
		roles[leaf] = groupstate.RoleRegular
	}
	for _, leaf := range removed {
		roles[leaf] = groupstate.RoleOutsider
	}
	return nil
}
