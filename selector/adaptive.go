package selector

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-beat/beat"
)

// selectAdaptive scores every candidate on four dimensions and picks the
// best spacing-feasible subset by dynamic programming. With weights
// {energy:1}, the result reduces to the energy strategy by definition.
func selectAdaptive(candidates []beat.Candidate, opts Options) []beat.Beat {
	if len(candidates) == 0 {
		return nil
	}
	if opts.Weights.Energy == 1 && opts.Weights.Regular == 0 && opts.Weights.Musical == 0 {
		return selectEnergy(candidates, opts.Count)
	}

	scores := adaptiveScores(candidates, opts)
	picked := dpSelect(candidates, scores, opts.Count, minSpacingFor(opts))

	// Pad with the highest-scoring unused candidates when the DP could not
	// fill the quota, keeping the global 50 ms floor.
	if len(picked) < opts.Count {
		used := make(map[int]bool, len(picked))
		for _, idx := range picked {
			used[idx] = true
		}
		order := make([]int, 0, len(candidates))
		for i := range candidates {
			if !used[i] {
				order = append(order, i)
			}
		}
		sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
		for _, idx := range order {
			if len(picked) >= opts.Count {
				break
			}
			ok := true
			for _, sel := range picked {
				if math.Abs(candidates[sel].Timestamp-candidates[idx].Timestamp) < minSpacingFloorMS {
					ok = false
					break
				}
			}
			if ok {
				picked = append(picked, idx)
			}
		}
	}

	out := make([]beat.Beat, len(picked))
	for i, idx := range picked {
		out[i] = candidates[idx].Beat
	}
	return out
}

// adaptiveScores computes the weighted per-candidate total of the energy,
// regularity, musical and context subscores.
func adaptiveScores(candidates []beat.Candidate, opts Options) []float64 {
	n := len(candidates)
	maxStrength, maxConf := eps, eps
	for _, c := range candidates {
		if c.Strength > maxStrength {
			maxStrength = c.Strength
		}
		if c.Confidence > maxConf {
			maxConf = c.Confidence
		}
	}
	durationMS := opts.DurationSec * 1000

	scores := make([]float64, n)
	for i, c := range candidates {
		energy := (c.Strength/maxStrength + c.Confidence/maxConf) / 2

		regularity := 1 - math.Abs(float64(i)/float64(n)-c.Timestamp/durationMS)*2
		regularity = clamp01(regularity)

		musical := 0.5 + gridAlignment(c, opts.Tempo) + beatRoleBonus(c, opts.Tempo) +
			0.2*localProminence(candidates, i, 1000)
		musical = clamp01(musical)

		context := contextScore(candidates, i)

		scores[i] = opts.Weights.Energy*energy +
			opts.Weights.Regular*regularity +
			opts.Weights.Musical*musical +
			0.1*context
	}
	return scores
}

// contextScore measures how a candidate sits among its neighbors: modest
// reward for being inside a strong region, penalty for isolation.
func contextScore(candidates []beat.Candidate, i int) float64 {
	self := candidates[i]
	neighbors := 0
	var neighborStrength float64
	for j, c := range candidates {
		if j == i {
			continue
		}
		if math.Abs(c.Timestamp-self.Timestamp) <= 500 {
			neighbors++
			neighborStrength += c.Strength
		}
	}
	s := 0.5
	if neighbors > 0 && neighborStrength/float64(neighbors) > self.Strength {
		s += 0.2
	}
	isolation := 1 - float64(neighbors)/5
	if isolation < 0 {
		isolation = 0
	}
	s -= 0.3 * isolation
	return clamp01(s)
}

// dpSelect maximizes total score over subsets of size <= count whose
// successive members are at least 0.3x the mean candidate interval apart,
// never below floorMS. Returns indices into candidates in ascending (time)
// order.
func dpSelect(candidates []beat.Candidate, scores []float64, count int, floorMS float64) []int {
	n := len(candidates)
	minSpacing := 0.3 * meanIntervalMS(candidates)
	if minSpacing < floorMS {
		minSpacing = floorMS
	}

	// dp[i][j]: best total choosing j beats from the first i+1 candidates
	// with candidate i selected last.
	dp := make([][]float64, n)
	prev := make([][]int, n)
	for i := range dp {
		dp[i] = make([]float64, count+1)
		prev[i] = make([]int, count+1)
		for j := range dp[i] {
			dp[i][j] = math.Inf(-1)
			prev[i][j] = -1
		}
		dp[i][1] = scores[i]
	}

	for i := 0; i < n; i++ {
		for j := 2; j <= count; j++ {
			for k := 0; k < i; k++ {
				if candidates[i].Timestamp-candidates[k].Timestamp < minSpacing {
					continue
				}
				if dp[k][j-1]+scores[i] > dp[i][j] {
					dp[i][j] = dp[k][j-1] + scores[i]
					prev[i][j] = k
				}
			}
		}
	}

	// Best endpoint over the largest feasible j, preferring more beats.
	bestI, bestJ := -1, 0
	bestScore := math.Inf(-1)
	for j := count; j >= 1 && bestI < 0; j-- {
		for i := 0; i < n; i++ {
			if !math.IsInf(dp[i][j], -1) && dp[i][j] > bestScore {
				bestScore = dp[i][j]
				bestI, bestJ = i, j
			}
		}
	}
	if bestI < 0 {
		return nil
	}

	picked := make([]int, 0, bestJ)
	for i, j := bestI, bestJ; i >= 0 && j >= 1; {
		picked = append(picked, i)
		ni := prev[i][j]
		i, j = ni, j-1
	}
	sort.Ints(picked)
	return picked
}

func meanIntervalMS(candidates []beat.Candidate) float64 {
	if len(candidates) < 2 {
		return 50
	}
	span := candidates[len(candidates)-1].Timestamp - candidates[0].Timestamp
	mean := span / float64(len(candidates)-1)
	if mean < 50 {
		return 50
	}
	return mean
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
