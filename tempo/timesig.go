package tempo

import "github.com/cwbudde/algo-beat/beat"

// Canonical accent templates per candidate numerator, strongest beat first.
var accentTemplates = map[int][]float64{
	2: {1.0, 0.6},
	3: {1.0, 0.5, 0.7},
	4: {1.0, 0.6, 0.8, 0.6},
	6: {1.0, 0.5, 0.6, 0.8, 0.5, 0.6},
	8: {1.0, 0.5, 0.7, 0.5, 0.8, 0.5, 0.7, 0.5},
}

// meterPrior weights meters by prevalence; duple folds of a 4/4 pattern
// score deceptively well without it.
var meterPrior = map[int]float64{
	2: 0.9,
	3: 1.0,
	4: 1.1,
	6: 0.95,
	8: 0.9,
}

// inferTimeSignature matches measure-folded onset strength against accent
// templates and applies tempo-based heuristics.
func (t *Tracker) inferTimeSignature(fn []float64, frameRate float64, tempo beat.Tempo) beat.TimeSignature {
	interval := tempo.BeatInterval()
	if interval <= 0 {
		return beat.TimeSignature{Numerator: 4, Denominator: 4}
	}
	beatFrames := interval * frameRate

	bestNum := 4
	bestScore := 0.0
	scores := make(map[int]float64, len(accentTemplates))
	for num, template := range accentTemplates {
		score := templateScore(fn, beatFrames, template) * meterPrior[num]
		scores[num] = score
		if score > bestScore {
			bestScore = score
			bestNum = num
		}
	}

	// Tempo heuristics: fast triple feels, slow compound meters.
	if tempo.BPM >= 160 && tempo.BPM <= 200 && scores[3] >= bestScore*0.85 {
		bestNum = 3
		bestScore = scores[3]
	}
	if tempo.BPM >= 60 && tempo.BPM <= 90 && scores[6] >= bestScore*0.85 {
		bestNum = 6
		bestScore = scores[6]
	}
	if bestScore < 0.3 {
		bestNum = 4
	}

	// Half-time feel: when a double-tempo alternative is nearly as
	// credible, the two-beat grouping is usually a folded 4.
	if bestNum == 2 {
		for _, alt := range tempo.Alternatives {
			if alt.BPM > tempo.BPM*1.9 && alt.BPM < tempo.BPM*2.1 && alt.Confidence > tempo.Confidence*0.7 {
				bestNum = 4
				break
			}
		}
	}

	den := 4
	if bestNum == 6 {
		den = 8
	}
	return beat.TimeSignature{Numerator: bestNum, Denominator: den}
}

// templateScore folds fn into measures of len(template) beats and sums
// min(expected, normalized observed) per beat position.
func templateScore(fn []float64, beatFrames float64, template []float64) float64 {
	num := len(template)
	measureFrames := beatFrames * float64(num)
	if measureFrames < 1 || float64(len(fn)) < measureFrames {
		return 0
	}

	measures := int(float64(len(fn)) / measureFrames)
	if measures == 0 {
		return 0
	}

	var total float64
	for m := 0; m < measures; m++ {
		start := float64(m) * measureFrames
		strengths := make([]float64, num)
		maxS := eps
		for b := 0; b < num; b++ {
			lo := int(start + float64(b)*beatFrames)
			hi := int(start + float64(b+1)*beatFrames)
			if hi > len(fn) {
				hi = len(fn)
			}
			if lo >= hi {
				continue
			}
			var sum float64
			for i := lo; i < hi; i++ {
				sum += fn[i]
			}
			strengths[b] = sum / float64(hi-lo)
			if strengths[b] > maxS {
				maxS = strengths[b]
			}
		}
		var score float64
		for b := 0; b < num; b++ {
			normalized := strengths[b] / maxS
			if normalized < template[b] {
				score += normalized
			} else {
				score += template[b]
			}
		}
		total += score / float64(num)
	}
	return total / float64(measures)
}
