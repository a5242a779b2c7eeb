package similaritysvc

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/darasa/core/assignment"
)

// difflibScorer rates submissions with a token-level sequence-match ratio.
type difflibScorer struct{}

var _ assignment.Scorer = (*difflibScorer)(nil)

func NewDifflibScorer() assignment.Scorer {
	return &difflibScorer{}
}

// ScoreSubmission rates the content against the assignment's solution
// artifact. An assignment without a solution artifact cannot be scored and
// gets a full score.
func (s difflibScorer) ScoreSubmission(ctx context.Context, a assignment.Assignment, content string) (float64, error) {
	if !a.SolutionPath.Valid {
		return 1.0, nil
	}
	solution, err := os.ReadFile(a.SolutionPath.String)
	if err != nil {
		return 0, errors.Wrap(err, "reading solution artifact")
	}
	return s.Similarity(content, string(solution)), nil
}

func (s difflibScorer) Similarity(a, b string) float64 {
	return difflib.NewMatcher(tokens(a), tokens(b)).Ratio()
}

func tokens(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
