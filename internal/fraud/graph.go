package fraud

import (
	"context"
	"time"
)

// hasReturnPath reports whether the transfer graph contains a directed path
// from start back to target. Called with start=destination and
// target=source, so a hit means the funds can travel A->B->...->A, the
// classic layering loop.
//
// Traversal is breadth-first with explicit visited-set bookkeeping and a
// hard cap on visited nodes so a dense or adversarial history cannot make
// the search unbounded.
func hasReturnPath(edges []AccountEdge, start, target string, maxNodes int) bool {
	if start == "" || target == "" {
		return false
	}

	adjacency := make(map[string][]string, len(edges))
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 && len(visited) <= maxNodes {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[current] {
			if next == target {
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}

	return false
}

// DetectCircularTransaction reports whether sending from->to would close a
// transfer loop through the edges observed in the configured lookback
// window (default 24h).
func (s *Service) DetectCircularTransaction(ctx context.Context, fromAccount, toAccount string) (bool, error) {
	return s.detectCircularInWindow(ctx, fromAccount, toAccount, s.policy.CircularLookback)
}

func (s *Service) detectCircularInWindow(ctx context.Context, fromAccount, toAccount string, window time.Duration) (bool, error) {
	edges, err := s.history.RecentTransfers(ctx, window)
	if err != nil {
		return false, err
	}

	return hasReturnPath(edges, toAccount, fromAccount, s.policy.MaxGraphNodes), nil
}
