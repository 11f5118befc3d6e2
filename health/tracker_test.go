package health

import (
	"sync"
	"testing"

	"github.com/erpc/walletrpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endpoints(urls ...string) []common.Endpoint {
	out := make([]common.Endpoint, 0, len(urls))
	for _, u := range urls {
		out = append(out, common.NewEndpoint(u))
	}
	return out
}

func TestTracker(t *testing.T) {
	a, b, c := "http://rpc-a.localhost", "http://rpc-b.localhost", "http://rpc-c.localhost"

	t.Run("EmptyCandidateList", func(t *testing.T) {
		tracker := NewTracker()
		_, err := tracker.SelectBest(nil)
		require.Error(t, err)
		assert.True(t, common.HasErrorCode(err, common.ErrCodeEmptyCandidateList))
	})

	t.Run("NoFailuresPrefersFirst", func(t *testing.T) {
		tracker := NewTracker()
		for i := 0; i < 10; i++ {
			ep, err := tracker.SelectBest(endpoints(a, b, c))
			require.NoError(t, err)
			assert.Equal(t, a, ep.Url)
		}
	})

	t.Run("SingleFailureDoesNotDemoteTopRank", func(t *testing.T) {
		tracker := NewTracker()
		tracker.RecordFailure(common.NewEndpoint(a))

		ep, err := tracker.SelectBest(endpoints(a, b, c))
		require.NoError(t, err)
		assert.Equal(t, a, ep.Url)
	})

	t.Run("FailuresOnSecondKeepFirst", func(t *testing.T) {
		tracker := NewTracker()
		tracker.RecordFailure(common.NewEndpoint(b))
		tracker.RecordFailure(common.NewEndpoint(b))

		ep, err := tracker.SelectBest(endpoints(a, b, c))
		require.NoError(t, err)
		assert.Equal(t, a, ep.Url)
	})

	t.Run("ProgressiveDeprioritization", func(t *testing.T) {
		tracker := NewTracker()
		list := endpoints(a, b, c)

		tracker.RecordFailure(common.NewEndpoint(a))
		assert.Equal(t, 1, tracker.FailureCount(common.NewEndpoint(a)))
		ep, _ := tracker.SelectBest(list)
		assert.Equal(t, a, ep.Url, "score(a)=1 < score(b)=2")

		tracker.RecordFailure(common.NewEndpoint(a))
		assert.Equal(t, 2, tracker.FailureCount(common.NewEndpoint(a)))
		ep, _ = tracker.SelectBest(list)
		assert.Equal(t, a, ep.Url, "score(a)=2 ties score(b)=2, earlier index wins")

		tracker.RecordFailure(common.NewEndpoint(a))
		ep, _ = tracker.SelectBest(list)
		assert.Equal(t, b, ep.Url, "score(a)=3 > score(b)=2")
	})

	t.Run("ThirdRankNeedsMoreFailures", func(t *testing.T) {
		tracker := NewTracker()
		list := endpoints(a, b, c)

		// c starts at 4; a and b must both exceed it.
		for i := 0; i < 5; i++ {
			tracker.RecordFailure(common.NewEndpoint(a))
		}
		for i := 0; i < 3; i++ {
			tracker.RecordFailure(common.NewEndpoint(b))
		}
		ep, _ := tracker.SelectBest(list)
		assert.Equal(t, c, ep.Url)
		assert.Equal(t, 4, tracker.Score(common.NewEndpoint(c), 2))
	})

	t.Run("CountsAreMonotonicUntilReset", func(t *testing.T) {
		tracker := NewTracker()
		ep := common.NewEndpoint(a)
		assert.Equal(t, 0, tracker.FailureCount(ep))

		prev := 0
		for i := 0; i < 20; i++ {
			tracker.RecordFailure(ep)
			_, _ = tracker.SelectBest(endpoints(a, b))
			cur := tracker.FailureCount(ep)
			assert.GreaterOrEqual(t, cur, prev)
			prev = cur
		}
		assert.Equal(t, 20, prev)

		tracker.ResetAll()
		assert.Equal(t, 0, tracker.FailureCount(ep))
	})

	t.Run("SharedAcrossCandidateLists", func(t *testing.T) {
		tracker := NewTracker()
		for i := 0; i < 3; i++ {
			tracker.RecordFailure(common.NewEndpoint(a))
		}

		ep, _ := tracker.SelectBest(endpoints(a, b))
		assert.Equal(t, b, ep.Url)
		ep, _ = tracker.SelectBest(endpoints(a, c))
		assert.Equal(t, c, ep.Url)
	})

	t.Run("ConcurrentRecording", func(t *testing.T) {
		tracker := NewTracker()
		ep := common.NewEndpoint(a)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tracker.RecordFailure(ep)
				_, _ = tracker.SelectBest(endpoints(a, b, c))
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, tracker.FailureCount(ep))
	})
}
