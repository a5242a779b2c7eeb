package similaritysvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/assignment"
)

var ctx = context.Background()

func TestSimilarity(t *testing.T) {
	scorer := NewDifflibScorer()

	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{name: "identical", a: "binary search over a sorted slice", b: "binary search over a sorted slice", want: 1.0},
		{name: "case and spacing ignored", a: "Binary  Search over a sorted slice", b: "binary search over a sorted slice", want: 1.0},
		{name: "disjoint", a: "quick sort partitions in place", b: "dijkstra relaxes every edge", want: 0.0},
		{name: "both empty", a: "", b: "", want: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scorer.Similarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestSimilarityIsOrderInsensitiveToRenames(t *testing.T) {
	scorer := NewDifflibScorer()

	base := "for i := 0; i < n; i++ { total += nums[i] }"
	reworded := "for j := 0; j < n; j++ { total += nums[j] }"
	sim := scorer.Similarity(base, reworded)
	assert.Greater(t, sim, 0.5, "near-identical solutions should score high")
	assert.Less(t, sim, 1.0, "renamed tokens should still lower the score")
}

func TestScoreSubmission(t *testing.T) {
	scorer := NewDifflibScorer()

	solution := "the quick brown fox jumps over the lazy dog"
	path := filepath.Join(t.TempDir(), "solution.txt")
	require.NoError(t, os.WriteFile(path, []byte(solution), 0o600))

	t.Run("matches solution artifact", func(t *testing.T) {
		a := assignment.Assignment{SolutionPath: null.StringFrom(path)}
		score, err := scorer.ScoreSubmission(ctx, a, solution)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, score, 0.001)
	})

	t.Run("partial match", func(t *testing.T) {
		a := assignment.Assignment{SolutionPath: null.StringFrom(path)}
		score, err := scorer.ScoreSubmission(ctx, a, "the quick brown fox naps under the lazy dog")
		require.NoError(t, err)
		assert.Greater(t, score, 0.5)
		assert.Less(t, score, 1.0)
	})

	t.Run("no solution artifact gets full score", func(t *testing.T) {
		score, err := scorer.ScoreSubmission(ctx, assignment.Assignment{}, "anything")
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("missing artifact errors", func(t *testing.T) {
		a := assignment.Assignment{SolutionPath: null.StringFrom(filepath.Join(t.TempDir(), "nope.txt"))}
		_, err := scorer.ScoreSubmission(ctx, a, "anything")
		assert.Error(t, err)
	})
}
