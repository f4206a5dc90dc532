package visual

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Search tuning
const (
	minPyramidSide   = 16 // coarsest template side
	maxPyramidLevels = 4
	coarseCandidates = 16
	refineRadius     = 2
	boundEvery       = 4    // rows between pruning checks
	pruneSlack       = 1e-7 // rounding allowance when pruning
)

// plane is a grayscale image stored row-major.
type plane struct {
	w, h int
	pix  []float64
}

func (p *plane) at(x, y int) float64 {
	return p.pix[y*p.w+x]
}

// grayPlane converts img to ITU-R 601 luminance in [0,255].
func grayPlane(img image.Image) *plane {
	b := img.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			p.pix[y*p.w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
		}
	}
	return p
}

// downsample halves the plane by 2x2 averaging.
func (p *plane) downsample() *plane {
	d := &plane{w: p.w / 2, h: p.h / 2}
	d.pix = make([]float64, d.w*d.h)
	for y := 0; y < d.h; y++ {
		for x := 0; x < d.w; x++ {
			sx, sy := 2*x, 2*y
			d.pix[y*d.w+x] = (p.at(sx, sy) + p.at(sx+1, sy) + p.at(sx, sy+1) + p.at(sx+1, sy+1)) / 4
		}
	}
	return d
}

// integral holds summed-area tables of values and squared values, with a
// zero first row and column.
type integral struct {
	w   int
	sum []float64
	sq  []float64
}

func newIntegral(p *plane) *integral {
	w := p.w + 1
	in := &integral{w: w, sum: make([]float64, w*(p.h+1)), sq: make([]float64, w*(p.h+1))}
	for y := 0; y < p.h; y++ {
		var rowSum, rowSq float64
		for x := 0; x < p.w; x++ {
			v := p.at(x, y)
			rowSum += v
			rowSq += v * v
			in.sum[(y+1)*w+x+1] = in.sum[y*w+x+1] + rowSum
			in.sq[(y+1)*w+x+1] = in.sq[y*w+x+1] + rowSq
		}
	}
	return in
}

// window returns the sum and squared sum over [x, x+tw) x [y, y+th).
func (in *integral) window(x, y, tw, th int) (float64, float64) {
	a, b := y*in.w+x, y*in.w+x+tw
	c, d := (y+th)*in.w+x, (y+th)*in.w+x+tw
	return in.sum[d] - in.sum[b] - in.sum[c] + in.sum[a],
		in.sq[d] - in.sq[b] - in.sq[c] + in.sq[a]
}

// template is a zero-mean template ready for correlation.
type template struct {
	*plane
	zm     []float64 // pixel minus mean
	energy float64   // sum of zm^2

	// rowSum[j] is the sum of zm over rows [0, j); tail[j] is the sum of
	// zm^2 over rows [j, h).
	rowSum []float64
	tail   []float64
}

func newTemplate(p *plane) *template {
	var mean float64
	for _, v := range p.pix {
		mean += v
	}
	mean /= float64(len(p.pix))

	t := &template{
		plane:  p,
		zm:     make([]float64, len(p.pix)),
		rowSum: make([]float64, p.h+1),
		tail:   make([]float64, p.h+1),
	}
	rowEnergy := make([]float64, p.h)
	for j := 0; j < p.h; j++ {
		var sum float64
		for i := 0; i < p.w; i++ {
			k := j*p.w + i
			t.zm[k] = p.pix[k] - mean
			sum += t.zm[k]
			rowEnergy[j] += t.zm[k] * t.zm[k]
		}
		t.rowSum[j+1] = t.rowSum[j] + sum
		t.energy += rowEnergy[j]
	}
	for j := p.h - 1; j >= 0; j-- {
		t.tail[j] = t.tail[j+1] + rowEnergy[j]
	}
	return t
}

// level is one pyramid step.
type level struct {
	screen *plane
	sums   *integral
	tmpl   *template
}

// score is the zero-mean normalized cross-correlation at (x, y).
func (l *level) score(x, y int) float64 {
	s, _ := l.boundedScore(x, y, math.Inf(-1))
	return s
}

// boundedScore computes the score at (x, y), giving up with ok false as soon
// as the score provably cannot reach bar. Every boundEvery rows the rest of
// the correlation is bounded by Cauchy-Schwarz over the remaining rows.
func (l *level) boundedScore(x, y int, bar float64) (float64, bool) {
	t := l.tmpl
	n := float64(t.w * t.h)
	sum, sq := l.sums.window(x, y, t.w, t.h)
	variance := sq - sum*sum/n

	const eps = 1e-6
	if t.energy < eps {
		if variance < eps {
			return 1, true // both flat
		}
		return 0, true
	}
	if variance < eps {
		return 0, true
	}

	mean := sum / n
	norm := math.Sqrt(t.energy * variance)
	checks := !math.IsInf(bar, -1)

	var cross float64
	for j := 0; j < t.h; j++ {
		if checks && j > 0 && j%boundEvery == 0 {
			rs, rsq := l.sums.window(x, y+j, t.w, t.h-j)
			rest := rsq - 2*mean*rs + float64(t.w*(t.h-j))*mean*mean
			if rest < 0 {
				rest = 0
			}
			upper := (cross - mean*t.rowSum[j] + math.Sqrt(t.tail[j]*rest)) / norm
			if upper < bar {
				return 0, false
			}
		}
		row := (y+j)*l.screen.w + x
		trow := j * t.w
		for i := 0; i < t.w; i++ {
			cross += t.zm[trow+i] * l.screen.pix[row+i]
		}
	}

	s := cross / norm
	return math.Max(-1, math.Min(1, s)), true
}

type candidate struct {
	x, y  int
	score float64
}

// MatchTemplate locates tmpl inside screen using zero-mean normalized
// cross-correlation on luminance. It returns the top-left corner of the
// global maximum (the first in row-major order on ties) and its score
// clamped to [0, 1].
//
// A coarse-to-fine pyramid search gives a starting score; every
// full-resolution position is then checked, skipping those whose bound
// falls below it.
func MatchTemplate(screen, tmpl image.Image) (image.Point, float64, error) {
	sb, tb := screen.Bounds(), tmpl.Bounds()
	if tb.Dx() == 0 || tb.Dy() == 0 {
		return image.Point{}, 0, fmt.Errorf("template is empty")
	}
	if tb.Dx() > sb.Dx() || tb.Dy() > sb.Dy() {
		return image.Point{}, 0, fmt.Errorf("template %dx%d is larger than screenshot %dx%d",
			tb.Dx(), tb.Dy(), sb.Dx(), sb.Dy())
	}

	levels := buildPyramid(grayPlane(screen), grayPlane(tmpl))
	seed := pyramidSearch(levels)

	best := scan(levels[0], seed.score-pruneSlack)
	if math.IsInf(best.score, -1) {
		best = seed
	}
	return image.Pt(best.x, best.y), math.Max(0, best.score), nil
}

// pyramidSearch scans the coarsest level exhaustively and refines the best
// candidates down to full resolution.
func pyramidSearch(levels []*level) candidate {
	candidates := exhaustive(levels[len(levels)-1])
	for i := len(levels) - 2; i >= 0; i-- {
		l := levels[i]
		for k := range candidates {
			candidates[k] = refine(l, candidates[k].x*2, candidates[k].y*2)
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}
	return best
}

// scan visits every position of l in horizontal bands, one worker per band,
// and returns the best score not below floor.
func scan(l *level, floor float64) candidate {
	rows := l.screen.h - l.tmpl.h + 1
	bands := runtime.GOMAXPROCS(0)
	if bands > rows {
		bands = rows
	}
	step := (rows + bands - 1) / bands

	results := make([]candidate, bands)
	var g errgroup.Group
	for b := 0; b < bands; b++ {
		b := b
		y0, y1 := b*step, (b+1)*step
		if y1 > rows {
			y1 = rows
		}
		g.Go(func() error {
			results[b] = scanRows(l, y0, y1, floor)
			return nil
		})
	}
	_ = g.Wait()

	// Bands are in row order, so strict comparison keeps the first maximum.
	best := candidate{score: math.Inf(-1)}
	for _, r := range results {
		if r.score > best.score {
			best = r
		}
	}
	return best
}

func scanRows(l *level, y0, y1 int, floor float64) candidate {
	maxX := l.screen.w - l.tmpl.w
	best := candidate{score: math.Inf(-1)}
	for y := y0; y < y1; y++ {
		for x := 0; x <= maxX; x++ {
			bar := math.Max(floor, best.score-pruneSlack)
			if s, ok := l.boundedScore(x, y, bar); ok && s >= floor && s > best.score {
				best = candidate{x, y, s}
			}
		}
	}
	return best
}

func buildPyramid(screen, tmpl *plane) []*level {
	levels := []*level{{screen: screen, sums: newIntegral(screen), tmpl: newTemplate(tmpl)}}
	for len(levels) < maxPyramidLevels && tmpl.w/2 >= minPyramidSide && tmpl.h/2 >= minPyramidSide {
		screen, tmpl = screen.downsample(), tmpl.downsample()
		levels = append(levels, &level{screen: screen, sums: newIntegral(screen), tmpl: newTemplate(tmpl)})
	}
	return levels
}

// exhaustive scores every position and keeps the best few.
func exhaustive(l *level) []candidate {
	maxX, maxY := l.screen.w-l.tmpl.w, l.screen.h-l.tmpl.h
	best := make([]candidate, 0, coarseCandidates+1)
	for y := 0; y <= maxY; y++ {
		for x := 0; x <= maxX; x++ {
			s := l.score(x, y)
			if len(best) == coarseCandidates && s <= best[len(best)-1].score {
				continue
			}
			best = append(best, candidate{x, y, s})
			sort.Slice(best, func(i, j int) bool { return best[i].score > best[j].score })
			if len(best) > coarseCandidates {
				best = best[:coarseCandidates]
			}
		}
	}
	return best
}

// refine searches a small neighborhood around (cx, cy).
func refine(l *level, cx, cy int) candidate {
	maxX, maxY := l.screen.w-l.tmpl.w, l.screen.h-l.tmpl.h
	best := candidate{score: math.Inf(-1)}
	for y := cy - refineRadius; y <= cy+refineRadius; y++ {
		if y < 0 || y > maxY {
			continue
		}
		for x := cx - refineRadius; x <= cx+refineRadius; x++ {
			if x < 0 || x > maxX {
				continue
			}
			if s := l.score(x, y); s > best.score {
				best = candidate{x, y, s}
			}
		}
	}
	if math.IsInf(best.score, -1) {
		// Neighborhood fell outside the search area; clamp.
		x, y := clamp(cx, 0, maxX), clamp(cy, 0, maxY)
		return candidate{x, y, l.score(x, y)}
	}
	return best
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
