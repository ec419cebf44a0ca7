package runtime

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/darma-tasking/vt-term/epoch"
	"github.com/darma-tasking/vt-term/messaging"
)

// TestRootedDSWithRouting: the root opens a rooted DS epoch
// and sends one message to node 1, whose handler forwards to node 2, which
// replies through node 1 back to the root. Only the root ever calls
// FinishedEpoch; the other nodes learn of the epoch purely from traffic
// and of its termination purely from the root's broadcast.
func TestRootedDSWithRouting(t *testing.T) {
	ctx := NewContext(3)
	const root = epoch.Node(0)

	recv := []epoch.Node{1, 2, 1, 0}
	ctx.Net().RegisterHandler("route", func(src epoch.Node, id epoch.Id, payload []byte) {
		hop := int(payload[0])
		if hop+1 < len(recv) {
			ctx.Sender(recv[hop]).SendBasic(recv[hop+1], id, "route", []byte{byte(hop + 1)})
		}
	})

	mgr := ctx.Manager(root)
	e := mgr.MakeEpochRooted(epoch.CategoryDS, "routing")
	ctx.Sender(root).SendBasic(recv[0], e, "route", []byte{0})
	mgr.FinishedEpoch(e)

	ctx.RunUntilQuiet()

	for _, n := range ctx.Net().Nodes() {
		require.True(t, ctx.Manager(n).IsEpochTerminated(e), "node %d", n)
	}
}

// TestChainStepsReleaseInOrderAcrossNodes: three chain steps
// on node 0, each a staged send to node 1, must arrive in step order even
// though all three are built and closed before any delivery happens.
func TestChainStepsReleaseInOrderAcrossNodes(t *testing.T) {
	ctx := NewContext(2)
	var got []byte
	ctx.Net().RegisterHandler("bump", func(src epoch.Node, id epoch.Id, payload []byte) {
		got = append(got, payload[0])
	})

	mgr := ctx.Manager(0)
	chain := messaging.NewDependentSendChain(mgr)
	for step := byte(1); step <= 3; step++ {
		e := mgr.MakeEpochRooted(epoch.CategoryDS, fmt.Sprintf("step-%d", step))
		mgr.PushEpoch(e)
		deliver := ctx.Sender(0).StageBasic(1, e, "bump", []byte{step})
		mgr.PopEpoch()
		chain.Add(e, messaging.NewPendingSend(deliver))
		mgr.FinishedEpoch(e)
	}

	ctx.RunUntilQuiet()

	require.Equal(t, []byte{1, 2, 3}, got)
	require.True(t, chain.IsTerminated())
}

// TestWindowReuseAfterReset: after a full teardown and
// reinitialization the id space restarts, a new epoch reuses the same bit
// pattern as a pre-reset one, and only the new registration fires.
func TestWindowReuseAfterReset(t *testing.T) {
	ctx := NewContext(1)
	mgr := ctx.Manager(0)

	e1 := mgr.MakeEpochRooted(epoch.CategoryDS, "first-life")
	firstFired := 0
	mgr.AddAction(e1, func() { firstFired++ })
	mgr.FinishedEpoch(e1)
	ctx.RunUntilQuiet()
	require.True(t, mgr.IsEpochTerminated(e1))
	require.Equal(t, 1, firstFired)

	ctx.Shutdown()
	ctx.Reinit()

	e2 := mgr.MakeEpochRooted(epoch.CategoryDS, "second-life")
	require.Equal(t, e1, e2, "generation counters restart after reinit, reusing the same bits")

	secondFired := 0
	mgr.AddAction(e2, func() { secondFired++ })
	mgr.FinishedEpoch(e2)
	ctx.RunUntilQuiet()

	require.True(t, mgr.IsEpochTerminated(e2))
	require.Equal(t, 1, secondFired)
	require.Equal(t, 1, firstFired, "the pre-reset registration must not refire")
}

// TestNestedCollectiveEpochsTerminateBeforeParent: an outer
// collective epoch P encloses four inner collective epochs C_0..C_3, each
// exchanging messages around a ring of the same four nodes. Every C_i must
// terminate before P does, and P must terminate exactly once per node.
func TestNestedCollectiveEpochsTerminateBeforeParent(t *testing.T) {
	ctx := NewContext(4)
	nodes := ctx.Net().Nodes()
	ctx.Net().RegisterHandler("ring", func(src epoch.Node, id epoch.Id, payload []byte) {})

	outer := make(map[epoch.Node]epoch.Id, len(nodes))
	for _, n := range nodes {
		outer[n] = ctx.Manager(n).MakeEpochCollective(epoch.CategoryWave, "outer")
		ctx.Manager(n).PushEpoch(outer[n])
	}

	const innerCount = 4
	inners := make([]map[epoch.Node]epoch.Id, innerCount)
	for i := 0; i < innerCount; i++ {
		inners[i] = make(map[epoch.Node]epoch.Id, len(nodes))
		for _, n := range nodes {
			id := ctx.Manager(n).MakeEpochCollective(epoch.CategoryWave, fmt.Sprintf("inner-%d", i))
			inners[i][n] = id
			ctx.Manager(n).PushEpoch(id)
		}
		for idx, n := range nodes {
			right := nodes[(idx+1)%len(nodes)]
			for k := 0; k < 3; k++ {
				ctx.Sender(n).SendBasic(right, inners[i][n], "ring", nil)
			}
		}
		for _, n := range nodes {
			ctx.Manager(n).PopEpoch()
			ctx.Manager(n).FinishedEpoch(inners[i][n])
		}
	}

	parentFired := make(map[epoch.Node]int, len(nodes))
	for _, n := range nodes {
		n := n
		ctx.Manager(n).AddActionUnique(outer[n], "count-outer-done", func() { parentFired[n]++ })
	}

	for _, n := range nodes {
		ctx.Manager(n).PopEpoch()
		ctx.Manager(n).FinishedEpoch(outer[n])
	}

	ctx.RunUntilQuiet()

	for _, n := range nodes {
		for i := 0; i < innerCount; i++ {
			require.True(t, ctx.Manager(n).IsEpochTerminated(inners[i][n]), "inner %d on node %d", i, n)
		}
		require.True(t, ctx.Manager(n).IsEpochTerminated(outer[n]), "outer on node %d", n)
		require.Equal(t, 1, parentFired[n], "outer fires its action exactly once on node %d", n)
	}
}

// TestRandomRootedEpochDAGsTerminate is a property-style check: a
// random-depth (<=5) nest of rooted epochs at a single root, each firing a
// random number of basic sends to random peers, must always reach global
// termination once finishedEpoch has been called on every level — no
// deadlock, regardless of shape. Trials run concurrently, each against its
// own isolated Context, and independent per-trial failures are aggregated
// rather than aborting the whole run at the first one.
func TestRandomRootedEpochDAGsTerminate(t *testing.T) {
	const trials = 8
	var (
		g      errgroup.Group
		mu     sync.Mutex
		result error
	)
	for i := 0; i < trials; i++ {
		seed := int64(10_000 + i)
		g.Go(func() error {
			if err := runRandomRootedTrial(seed); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if result != nil {
		t.Fatal(result)
	}
}

func runRandomRootedTrial(seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	numNodes := 2 + rng.Intn(3) // 2..4
	ctx := NewContext(numNodes)
	nodes := ctx.Net().Nodes()
	ctx.Net().RegisterHandler("noop", func(epoch.Node, epoch.Id, []byte) {})

	const root = epoch.Node(0)
	mgr := ctx.Manager(root)

	depth := 1 + rng.Intn(5) // 1..5
	chain := make([]epoch.Id, 0, depth)
	parent := epoch.NoEpoch
	for d := 0; d < depth; d++ {
		id := mgr.MakeEpochRooted(epoch.CategoryDS, fmt.Sprintf("level-%d", d))
		if !parent.IsSentinel() {
			mgr.AddDependency(parent, id)
		}
		mgr.PushEpoch(id)
		sends := rng.Intn(5)
		for k := 0; k < sends; k++ {
			dst := nodes[rng.Intn(len(nodes))]
			ctx.Sender(root).SendBasic(dst, id, "noop", nil)
		}
		mgr.PopEpoch()
		chain = append(chain, id)
		parent = id
	}

	for _, id := range chain {
		mgr.FinishedEpoch(id)
	}

	ctx.RunUntilQuiet()

	var result error
	for d, id := range chain {
		if !mgr.IsEpochTerminated(id) {
			result = multierror.Append(result, fmt.Errorf(
				"seed %d: level-%d epoch %s never terminated (nodes=%d, depth=%d)", seed, d, id, numNodes, depth))
		}
	}
	return result
}
