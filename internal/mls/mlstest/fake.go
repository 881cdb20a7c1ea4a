// Package mlstest provides an in-memory stand-in for internal/mls good
// enough to exercise internal/ds's group-operation pipeline in tests,
// without implementing anything resembling real MLS cryptography. Encoded
// "commits" in this package are plain JSON describing the proposals they
// carry; production wiring replaces this wholesale with a real MLS library.
package mlstest

import (
	"encoding/json"
	"fmt"

	"github.com/giantswarm/phnx-homeserver/internal/mls"
)

// Commit is the fake wire format processed by FakeGroup.Process.
type Commit struct {
	Sender        mls.Sender
	SenderLeaf    uint32
	Adds          []mls.AddedLeaf
	Removes       []uint32
	ReplacedLeaf  uint32
}

// Encode serializes a Commit the way a caller constructs the commitBytes
// argument to Group.Process in tests.
func Encode(c Commit) []byte {
	b, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	return b
}

// FakeGroup tracks membership as a plain leaf-index set and nothing else.
type FakeGroup struct {
	epoch   uint64
	members map[uint32]bool
	pending *mls.ProcessedCommit
}

// NewFakeGroup starts a group with a single creator at leaf 0.
func NewFakeGroup() *FakeGroup {
	return &FakeGroup{epoch: 0, members: map[uint32]bool{0: true}}
}

func (g *FakeGroup) Process(commitBytes []byte, aad []byte) (mls.ProcessedCommit, error) {
	var c Commit
	if err := json.Unmarshal(commitBytes, &c); err != nil {
		return mls.ProcessedCommit{}, fmt.Errorf("mlstest: malformed commit: %w", err)
	}
	if c.Sender == mls.SenderMember && !g.members[c.SenderLeaf] {
		return mls.ProcessedCommit{}, fmt.Errorf("mlstest: sender leaf %d is not a member", c.SenderLeaf)
	}
	processed := mls.ProcessedCommit{
		Sender:           c.Sender,
		SenderLeaf:       c.SenderLeaf,
		AddedLeaves:      c.Adds,
		RemovedLeaves:    c.Removes,
		ReplacedLeaf:     c.ReplacedLeaf,
		NewEpoch:         g.epoch + 1,
		SerializedCommit: commitBytes,
	}
	g.pending = &processed
	return processed, nil
}

func (g *FakeGroup) Merge(p mls.ProcessedCommit) error {
	for _, added := range p.AddedLeaves {
		g.members[added.LeafIndex] = true
	}
	for _, removed := range p.RemovedLeaves {
		delete(g.members, removed)
	}
	if p.Sender == mls.SenderNewMemberCommit {
		delete(g.members, p.ReplacedLeaf)
		g.members[p.SenderLeaf] = true
	}
	g.epoch = p.NewEpoch
	g.pending = nil
	return nil
}

func (g *FakeGroup) Serialize() ([]byte, error) {
	return json.Marshal(struct {
		Epoch   uint64
		Members map[uint32]bool
	}{Epoch: g.epoch, Members: g.members})
}

func (g *FakeGroup) Epoch() uint64 { return g.epoch }

// FakeProcessor implements mls.Processor over FakeGroup.
type FakeProcessor struct{}

func (FakeProcessor) LoadGroup(serialized []byte) (mls.Group, error) {
	var s struct {
		Epoch   uint64
		Members map[uint32]bool
	}
	if err := json.Unmarshal(serialized, &s); err != nil {
		return nil, fmt.Errorf("mlstest: loading group: %w", err)
	}
	if s.Members == nil {
		s.Members = map[uint32]bool{}
	}
	return &FakeGroup{epoch: s.Epoch, members: s.Members}, nil
}

func (FakeProcessor) CreateGroup(groupInfo []byte, creatorLeaf []byte) (mls.Group, error) {
	return NewFakeGroup(), nil
}
