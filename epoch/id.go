// Package epoch implements the fixed-width epoch identifier algebra: pure
// bit-field encode/decode logic with no runtime state attached.
package epoch

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Category distinguishes which detector family an epoch belongs to and,
// for rooted epochs, which detector was requested at creation time.
type Category uint8

const (
	// CategoryDefault is used for epochs that have not yet committed to a
	// detector (transient, never observed outside id construction).
	CategoryDefault Category = iota
	// CategoryDS marks a rooted epoch tracked by the Dijkstra-Scholten
	// deficit-counting detector.
	CategoryDS
	// CategoryWave marks a collective epoch tracked by the four-counter
	// (Mattern wave) detector.
	CategoryWave
	// CategoryUserDefined is opaque to the runtime and reserved for
	// application-defined detector extensions.
	CategoryUserDefined
)

func (c Category) String() string {
	switch c {
	case CategoryDefault:
		return "Default"
	case CategoryDS:
		return "DS"
	case CategoryWave:
		return "Wave"
	case CategoryUserDefined:
		return "UserDefined"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Node is a node identifier in the runtime's node set.
type Node uint16

// Bit layout of Id, frozen across all nodes:
//
//	bit 63       rooted
//	bits 61-62   category (2 bits)
//	bits 45-60   root_node (16 bits), 0 for collective epochs
//	bits 13-44   generation (32 bits)
//	bits 0-12    user (13 bits), opaque to the runtime
const (
	rootedShift = 63
	rootedMask  = uint64(1) << rootedShift

	categoryShift = 61
	categoryBits  = 2
	categoryMask  = uint64(0x3) << categoryShift

	rootNodeShift = 45
	rootNodeBits  = 16
	rootNodeMask  = uint64(0xFFFF) << rootNodeShift

	generationShift = 13
	generationBits  = 32
	generationMask  = uint64(0xFFFFFFFF) << generationShift

	userShift = 0
	userBits  = 13
	userMask  = uint64(0x1FFF) << userShift
)

// Id is a fixed-width opaque epoch identifier. Two ids compare equal iff
// bitwise equal, and the zero value is never a valid allocated id.
type Id uint64

// NoEpoch is the sentinel value meaning "no epoch". Generation counters
// start at 1, so a real, allocated epoch id is never NoEpoch.
const NoEpoch Id = 0

// AnyEpoch is the globally-reserved epoch used to track process-wide
// production/consumption (pinned open during runtime startup/shutdown so it
// blocks premature global quiescence). It is never returned by
// makeCollective/makeRooted.
const AnyEpoch Id = Id(^uint64(0))

// MaxGeneration is the largest representable generation counter value in a
// (creator, category) lane.
const MaxGeneration uint32 = ^uint32(0) >> (32 - generationBits)

// MaxUserBits is the largest representable user-bits value.
const MaxUserBits uint16 = ^uint16(0) >> (16 - userBits)

func pack(rooted bool, cat Category, root Node, gen uint32, user uint16) Id {
	var v uint64
	if rooted {
		v |= rootedMask
	}
	v |= (uint64(cat) << categoryShift) & categoryMask
	v |= (uint64(root) << rootNodeShift) & rootNodeMask
	v |= (uint64(gen) << generationShift) & generationMask
	v |= (uint64(user) << userShift) & userMask
	return Id(v)
}

// MakeCollective constructs a collective epoch id for the given category
// (normally CategoryWave) and generation, agreed on in lockstep by all
// nodes during barrier creation. The creator-node field is always
// zero for collective epochs.
func MakeCollective(cat Category, generation uint32) Id {
	return pack(false, cat, 0, generation, 0)
}

// MakeRooted constructs a rooted epoch id, created locally by creator with
// no communication required. cat is normally CategoryDS.
func MakeRooted(creator Node, cat Category, generation uint32) Id {
	return pack(true, cat, creator, generation, 0)
}

// WithUser returns a copy of id with its opaque user bits replaced.
func (id Id) WithUser(user uint16) Id {
	return pack(id.IsRooted(), id.Category(), id.Creator(), id.Generation(), user)
}

// Next returns the next-generation epoch id sharing rooted/category/creator
// with id (rooted next-generation is a creator-local counter and
// needs no communication; collective next-generation is agreed on via
// lockstep barrier creation by the caller before this is invoked).
func (id Id) Next() Id {
	return pack(id.IsRooted(), id.Category(), id.Creator(), id.Generation()+1, 0)
}

// IsRooted reports whether id is a rooted (vs collective) epoch.
func (id Id) IsRooted() bool {
	return uint64(id)&rootedMask != 0
}

// Category extracts the detector category from id.
func (id Id) Category() Category {
	return Category((uint64(id) & categoryMask) >> categoryShift)
}

// Creator recovers the creator node of a rooted epoch directly from its id,
// with no lookup required. Returns 0 for collective epochs.
func (id Id) Creator() Node {
	return Node((uint64(id) & rootNodeMask) >> rootNodeShift)
}

// Generation extracts the monotone per-(creator,category) generation
// counter.
func (id Id) Generation() uint32 {
	return uint32((uint64(id) & generationMask) >> generationShift)
}

// User extracts the opaque user bits.
func (id Id) User() uint16 {
	return uint16((uint64(id) & userMask) >> userShift)
}

// IsSentinel reports whether id is NoEpoch or AnyEpoch.
func (id Id) IsSentinel() bool {
	return id == NoEpoch || id == AnyEpoch
}

// Lane identifies the (creator, category) window lane an epoch id belongs
// to, used to key EpochWindow and the rooted per-creator generation
// counter.
type Lane struct {
	Creator  Node
	Category Category
	Rooted   bool
}

// Lane returns the (creator, category) lane id belongs to.
func (id Id) Lane() Lane {
	return Lane{Creator: id.Creator(), Category: id.Category(), Rooted: id.IsRooted()}
}

func (id Id) String() string {
	if id == NoEpoch {
		return "NoEpoch"
	}
	if id == AnyEpoch {
		return "AnyEpoch"
	}
	kind := "collective"
	if id.IsRooted() {
		kind = fmt.Sprintf("rooted(creator=%d)", id.Creator())
	}
	return fmt.Sprintf("Epoch(%s,cat=%s,gen=%d,user=%d)", kind, id.Category(), id.Generation(), id.User())
}

// MarshalCBOR serializes id as a fixed-width CBOR byte string so the wire
// layout can never drift between nodes, mirroring the
// Marshal/Unmarshal method pair idiom the runtime uses for other wire types.
func (id Id) MarshalCBOR() ([]byte, error) {
	raw := uint64(id)
	buf := [8]byte{
		byte(raw >> 56), byte(raw >> 48), byte(raw >> 40), byte(raw >> 32),
		byte(raw >> 24), byte(raw >> 16), byte(raw >> 8), byte(raw),
	}
	return cbor.Marshal(buf[:])
}

// UnmarshalCBOR deserializes a fixed-width CBOR byte string into id.
func (id *Id) UnmarshalCBOR(data []byte) error {
	var buf []byte
	if err := cbor.Unmarshal(data, &buf); err != nil {
		return fmt.Errorf("epoch: corrupt id envelope: %w", err)
	}
	if len(buf) != 8 {
		return fmt.Errorf("epoch: corrupt id envelope: want 8 bytes, got %d", len(buf))
	}
	var raw uint64
	for _, b := range buf {
		raw = raw<<8 | uint64(b)
	}
	*id = Id(raw)
	return nil
}
