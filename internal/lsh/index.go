// Package lsh implements approximate k-nearest-neighbor search with
// locality-sensitive hashing: points are bucketed by random projections or
// hyperplanes, and queries rank only the reference points sharing a bucket.
package lsh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"lshann/internal/archive"
	"lshann/internal/dataset"
	"lshann/internal/random"
	pkgerrors "lshann/pkg/errors"
	"lshann/pkg/logger"
)

// Index is a trained LSH model over a reference set. Train is exclusive;
// searches run concurrently with each other.
type Index struct {
	mu       sync.RWMutex
	params   Params
	policy   RankingPolicy
	src      Source
	workers  int
	observer Observer

	ref    reference
	tables *HashTables

	distanceEvaluations atomic.Uint64
}

type Option func(*Index)

// WithRankingPolicy selects nearest-first (default) or furthest-first.
func WithRankingPolicy(p RankingPolicy) Option {
	return func(x *Index) { x.policy = p }
}

// WithSource injects the randomness used by Train.
func WithSource(src Source) Option {
	return func(x *Index) { x.src = src }
}

// WithWorkers bounds the number of queries searched in parallel.
func WithWorkers(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.workers = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(x *Index) { x.observer = o }
}

// New returns an untrained index owning an empty reference set.
func New(opts ...Option) *Index {
	x := &Index{
		params:  DefaultParams(),
		policy:  NearestFirst,
		workers: runtime.GOMAXPROCS(0),
		ref:     exclusive{dataset.Empty()},
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.src == nil {
		x.src = random.NewRandom()
	}
	return x
}

// Train builds the hash tables over ref, which the caller keeps and must
// not modify or release while the index uses it.
func (x *Index) Train(ref *dataset.Dataset, p Params) error {
	return x.train(borrowed{ref}, p)
}

// TrainOwned builds the hash tables over ref and takes ownership of it.
func (x *Index) TrainOwned(ref *dataset.Dataset, p Params) error {
	return x.train(exclusive{ref}, p)
}

func (x *Index) train(ref reference, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ds := ref.data()
	if p.Dims != 0 && p.Dims != ds.Dims() {
		return fmt.Errorf("%w: params specify %d dimensions, reference set has %d",
			pkgerrors.ErrDimensionMismatch, p.Dims, ds.Dims())
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	tables, err := BuildHashTables(ds, p, x.src)
	if err != nil {
		return err
	}
	if x.ref.data() != ds {
		x.ref.release()
	}
	x.ref = ref
	x.tables = tables
	x.params = tables.Params()
	return nil
}

// Search finds the k neighbors of every query point among the candidates
// of the first numTablesToSearch tables (0 means all).
func (x *Index) Search(queries *dataset.Dataset, k, numTablesToSearch int) (*SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := x.checkSearch(queries.Len(), queries.Dims(), k); err != nil {
		return nil, err
	}
	return x.search(queries, k, numTablesToSearch, false), nil
}

// SearchSelf finds the k neighbors of every reference point, never
// returning a point as its own neighbor.
func (x *Index) SearchSelf(k, numTablesToSearch int) (*SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ref := x.ref.data()
	if err := x.checkSearch(ref.Len(), ref.Dims(), k); err != nil {
		return nil, err
	}
	return x.search(ref, k, numTablesToSearch, true), nil
}

func (x *Index) checkSearch(nq, dims, k int) error {
	if x.tables == nil {
		return fmt.Errorf("%w: index is not trained", pkgerrors.ErrInsufficientData)
	}
	if nq > 0 && dims != x.params.Dims {
		return fmt.Errorf("%w: queries have %d dimensions, index has %d",
			pkgerrors.ErrDimensionMismatch, dims, x.params.Dims)
	}
	if k < 0 {
		return fmt.Errorf("%w: k %d", pkgerrors.ErrInvalidParameter, k)
	}
	if n := x.ref.data().Len(); k > n {
		return fmt.Errorf("%w: requested %d neighbors from a reference set of %d points",
			pkgerrors.ErrInsufficientData, k, n)
	}
	return nil
}

func (x *Index) search(queries *dataset.Dataset, k, numTablesToSearch int, self bool) *SearchResult {
	nq := queries.Len()
	res := newSearchResult(k, nq)
	if k == 0 || nq == 0 {
		return res
	}
	if x.observer != nil {
		start := time.Now()
		x.observer.SearchStarted(nq)
		defer func() { x.observer.SearchFinished(nq, time.Since(start)) }()
	}

	ref := x.ref.data()
	distance := x.tables.Kind().Distance
	var evaluated atomic.Uint64

	var g errgroup.Group
	g.SetLimit(x.workers)
	for q := 0; q < nq; q++ {
		g.Go(func() error {
			query := queries.Point(q)
			neighbors, distances := res.Column(q)
			top := NewTopK(x.policy, ref.Len(), neighbors, distances)

			candidates := x.tables.Candidates(query, numTablesToSearch)
			evaluated.Add(uint64(len(candidates)))
			for _, c := range candidates {
				if self && c == q {
					continue
				}
				top.Offer(c, distance(query, ref.Point(c)))
			}
			return nil
		})
	}
	_ = g.Wait()

	total := evaluated.Load()
	x.distanceEvaluations.Add(total)
	logger.Debug("Search finished",
		"queries", nq,
		"k", k,
		"avg_candidates", float64(total)/float64(nq))
	return res
}

// Params returns the trained parameters with Dims and HashWidth resolved.
func (x *Index) Params() Params {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.params
}

func (x *Index) Reference() *dataset.Dataset {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ref.data()
}

// OwnsReference reports whether Close releases the reference set.
func (x *Index) OwnsReference() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ref.owned()
}

// DistanceEvaluations is the running total of candidates evaluated by all
// searches over the life of the index. Retraining does not reset it.
func (x *Index) DistanceEvaluations() uint64 {
	return x.distanceEvaluations.Load()
}

func (x *Index) Policy() RankingPolicy { return x.policy }

// Tables returns nil before training.
func (x *Index) Tables() *HashTables {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tables
}

// Close drops the hash tables and releases an owned reference set.
func (x *Index) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ref.release()
	x.ref = exclusive{dataset.Empty()}
	x.tables = nil
	x.params = DefaultParams()
}

// Serialize saves or loads the trained model through ar. A loaded index
// owns its reference set.
func (x *Index) Serialize(ar archive.Archive) error {
	if ar.Loading() {
		x.mu.Lock()
		defer x.mu.Unlock()
	} else {
		x.mu.RLock()
		defer x.mu.RUnlock()
		if x.tables == nil {
			return fmt.Errorf("%w: index is not trained", pkgerrors.ErrInsufficientData)
		}
	}

	var dims, count int
	var data []float64
	if !ar.Loading() {
		ds := x.ref.data()
		dims, count, data = ds.Dims(), ds.Len(), ds.Raw()
	}
	ar.Int("referenceSet.dims", &dims)
	ar.Int("referenceSet.count", &count)
	ar.Float64s("referenceSet.data", &data)
	if err := ar.Err(); err != nil {
		return err
	}

	tables := x.tables
	if ar.Loading() {
		tables = &HashTables{}
	}
	if err := tables.Serialize(ar); err != nil {
		return err
	}

	p := x.params
	hashType := int(p.HashType)
	evaluations := x.distanceEvaluations.Load()
	ar.Int("hashType", &hashType)
	ar.Int("secondHashSize", &p.SecondHashSize)
	ar.Int("bucketSize", &p.BucketSize)
	ar.Int("numProj", &p.NumProj)
	ar.Int("numTables", &p.NumTables)
	ar.Float64("hashWidth", &p.HashWidth)
	ar.Int("numDimensions", &p.Dims)
	ar.Int("numPlanes", &p.NumPlanes)
	ar.Uint64("distanceEvaluations", &evaluations)
	ar.Int("shears", &p.Shears)
	if err := ar.Err(); err != nil || !ar.Loading() {
		return err
	}
	p.HashType = HashType(hashType)

	if p != tables.Params() {
		return fmt.Errorf("%w: index parameters disagree with hash tables", pkgerrors.ErrCorruptSnapshot)
	}
	if dims != p.Dims || count != tables.points || len(data) != dims*count {
		return fmt.Errorf("%w: reference set of %d x %d with %d values for a %d-dimensional index of %d points",
			pkgerrors.ErrCorruptSnapshot, dims, count, len(data), p.Dims, tables.points)
	}
	ds, err := dataset.New(dims, data)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrCorruptSnapshot, err)
	}

	x.ref.release()
	x.ref = exclusive{ds}
	x.tables = tables
	x.params = p
	x.distanceEvaluations.Store(evaluations)
	return nil
}

// WriteTo writes a snapshot of the trained index to w.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	ar, err := archive.NewWriter(cw)
	if err != nil {
		return cw.n, err
	}
	if err := x.Serialize(ar); err != nil {
		_ = ar.Close()
		return cw.n, err
	}
	err = ar.Close()
	return cw.n, err
}

// ReadFrom replaces the index state with a snapshot read from r.
func (x *Index) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	ar, err := archive.NewReader(cr)
	if err != nil {
		return cr.n, err
	}
	// Load into a scratch index so a corrupt stream leaves x untouched.
	scratch := &Index{ref: exclusive{dataset.Empty()}}
	if err := scratch.Serialize(ar); err != nil {
		_ = ar.Close()
		return cr.n, err
	}
	if err := ar.Close(); err != nil {
		scratch.Close()
		return cr.n, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.ref.release()
	x.ref = scratch.ref
	x.tables = scratch.tables
	x.params = scratch.params
	x.distanceEvaluations.Store(scratch.distanceEvaluations.Load())
	return cr.n, nil
}

// Save writes a snapshot to path, replacing it atomically.
func (x *Index) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if _, err := x.WriteTo(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	return nil
}

// Load replaces the index state with the snapshot at path.
func (x *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	_, err = x.ReadFrom(bufio.NewReader(f))
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
