package ga

import (
	"math/rand"
	"sort"
)

// selectFunc returns the index of one parent. Lower fitness is better.
type selectFunc func(rng *rand.Rand, fitness []float64, tournament int) int

// crossoverFunc produces two children from parents of equal length.
type crossoverFunc func(rng *rand.Rand, a, b []int) ([]int, []int)

// mutateFunc changes c in place.
type mutateFunc func(rng *rand.Rand, c []int)

var selectors = map[Selection]selectFunc{
	Tournament: tournamentSelect,
	Roulette:   rouletteSelect,
	Rank:       rankSelect,
}

var crossovers = map[Crossover]crossoverFunc{
	Ordered:         orderedCrossover,
	PartiallyMapped: pmxCrossover,
	Cycle:           cycleCrossover,
}

var mutators = map[Mutation]mutateFunc{
	Swap:      swapMutation,
	Insert:    insertMutation,
	Inversion: inversionMutation,
	Scramble:  scrambleMutation,
}

const rouletteEps = 1e-6

// tournamentSelect samples k distinct individuals and returns the fittest.
func tournamentSelect(rng *rand.Rand, fitness []float64, k int) int {
	k = min(k, len(fitness))
	best := -1
	for _, i := range rng.Perm(len(fitness))[:max(k, 1)] {
		if best < 0 || fitness[i] < fitness[best] {
			best = i
		}
	}
	return best
}

// rouletteSelect draws proportionally to max - f + eps.
func rouletteSelect(rng *rand.Rand, fitness []float64, _ int) int {
	hi := fitness[0]
	for _, f := range fitness[1:] {
		hi = max(hi, f)
	}
	w := make([]float64, len(fitness))
	for i, f := range fitness {
		w[i] = hi - f + rouletteEps
	}
	return drawWeighted(rng, w)
}

// rankSelect weights the best individual with len and the worst with 1.
func rankSelect(rng *rand.Rand, fitness []float64, _ int) int {
	order := argsort(fitness)
	w := make([]float64, len(fitness))
	for rank, i := range order {
		w[i] = float64(len(fitness) - rank)
	}
	return drawWeighted(rng, w)
}

func drawWeighted(rng *rand.Rand, w []float64) int {
	total := 0.0
	for _, v := range w {
		total += v
	}
	r := rng.Float64() * total
	for i, v := range w {
		if r < v {
			return i
		}
		r -= v
	}
	return len(w) - 1
}

// argsort returns indices ordered by ascending value; ties keep index order.
func argsort(xs []float64) []int {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	return idx
}

// cutPoints returns i < j with j reaching at most len-1. n must be >= 2.
func cutPoints(rng *rand.Rand, n int) (int, int) {
	i := rng.Intn(n - 1)
	j := i + 1 + rng.Intn(n-1-i)
	return i, j
}

func orderedCrossover(rng *rand.Rand, a, b []int) ([]int, []int) {
	if len(a) < 2 {
		return clone(a), clone(b)
	}
	i, j := cutPoints(rng, len(a))
	return oxChild(a, b, i, j), oxChild(b, a, i, j)
}

// oxChild keeps seg[i..j] of keep and fills the other positions left to
// right with the genes of fill in their order, skipping those already used.
func oxChild(keep, fill []int, i, j int) []int {
	n := len(keep)
	child := make([]int, n)
	used := make(map[int]bool, j-i+1)
	for k := i; k <= j; k++ {
		child[k] = keep[k]
		used[keep[k]] = true
	}
	src := 0
	for k := 0; k < n; k++ {
		if k >= i && k <= j {
			continue
		}
		for src < n && used[fill[src]] {
			src++
		}
		if src == n {
			break
		}
		child[k] = fill[src]
		used[fill[src]] = true
		src++
	}
	return child
}

func pmxCrossover(rng *rand.Rand, a, b []int) ([]int, []int) {
	if len(a) < 2 {
		return clone(a), clone(b)
	}
	i, j := cutPoints(rng, len(a))
	return pmxChild(a, b, i, j), pmxChild(b, a, i, j)
}

// pmxChild copies seg[i..j] of keep; the other genes come from fill, with
// clashes resolved by following the segment mapping keep[k] -> fill[k].
func pmxChild(keep, fill []int, i, j int) []int {
	n := len(keep)
	child := make([]int, n)
	segPos := make(map[int]int, j-i+1)
	for k := i; k <= j; k++ {
		child[k] = keep[k]
		segPos[keep[k]] = k
	}
	for k := 0; k < n; k++ {
		if k >= i && k <= j {
			continue
		}
		v := fill[k]
		for steps := 0; steps <= n; steps++ {
			p, clash := segPos[v]
			if !clash {
				break
			}
			v = fill[p]
		}
		child[k] = v
	}
	return child
}

// cycleCrossover alternates whole position cycles between the parents.
func cycleCrossover(_ *rand.Rand, a, b []int) ([]int, []int) {
	n := len(a)
	posA := make(map[int]int, n)
	for k, v := range a {
		posA[v] = k
	}
	c1, c2 := make([]int, n), make([]int, n)
	done := make([]bool, n)
	cycle := 0
	for start := 0; start < n; start++ {
		if done[start] {
			continue
		}
		k := start
		for !done[k] {
			done[k] = true
			if cycle%2 == 0 {
				c1[k], c2[k] = a[k], b[k]
			} else {
				c1[k], c2[k] = b[k], a[k]
			}
			next, ok := posA[b[k]]
			if !ok {
				break
			}
			k = next
		}
		cycle++
	}
	return c1, c2
}

func swapMutation(rng *rand.Rand, c []int) {
	if len(c) < 2 {
		return
	}
	i, j := rng.Intn(len(c)), rng.Intn(len(c))
	c[i], c[j] = c[j], c[i]
}

// insertMutation moves the gene at a later position j to an earlier position i.
func insertMutation(rng *rand.Rand, c []int) {
	if len(c) < 2 {
		return
	}
	i, j := cutPoints(rng, len(c))
	g := c[j]
	copy(c[i+1:j+1], c[i:j])
	c[i] = g
}

func inversionMutation(rng *rand.Rand, c []int) {
	if len(c) < 2 {
		return
	}
	i, j := cutPoints(rng, len(c))
	for ; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

func scrambleMutation(rng *rand.Rand, c []int) {
	if len(c) < 2 {
		return
	}
	i, j := cutPoints(rng, len(c))
	seg := c[i : j+1]
	rng.Shuffle(len(seg), func(x, y int) { seg[x], seg[y] = seg[y], seg[x] })
}

// repair turns c back into a permutation of 1..n: out-of-range genes and
// repeated occurrences are replaced by missing values in ascending order.
func repair(c []int, n int) {
	seen := make([]bool, n+1)
	var dup []int
	for k, v := range c {
		if v < 1 || v > n || seen[v] {
			dup = append(dup, k)
			continue
		}
		seen[v] = true
	}
	if len(dup) == 0 {
		return
	}
	next := 1
	for _, k := range dup {
		for next <= n && seen[next] {
			next++
		}
		if next > n {
			break
		}
		c[k] = next
		seen[next] = true
	}
}

func clone(c []int) []int { return append([]int(nil), c...) }
