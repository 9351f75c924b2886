package vectorize

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

const (
	testAccount = "acc-123"
	testToken   = "test-token"
)

// fakeIndex is the state of one index held by fakeVectorize.
type fakeIndex struct {
	dimension       int
	metric          string
	vectors         map[string]vectorRecord
	metadataIndexes map[string]string
}

// fakeVectorize mimics the subset of the Vectorize v2 API the client uses.
type fakeVectorize struct {
	t      *testing.T
	server *httptest.Server
	calls  atomic.Int64

	mu      sync.Mutex
	indexes map[string]*fakeIndex
	// override, when set, answers a request instead of the fake's handlers.
	override func(w http.ResponseWriter, r *http.Request) bool
	// lastRequest holds the most recent request headers and body.
	lastHeader http.Header
	lastBody   []byte
	lastPath   string
}

func newFakeVectorize(t *testing.T) *fakeVectorize {
	t.Helper()
	f := &fakeVectorize{t: t, indexes: map[string]*fakeIndex{}}

	base := "/client/v4/accounts/{account}/vectorize/v2/indexes"
	r := chi.NewRouter()
	r.Use(f.record, f.authenticate)
	r.Post(base, f.createIndex)
	r.Get(base+"/{index}", f.getIndex)
	r.Delete(base+"/{index}", f.deleteIndex)
	r.Get(base+"/{index}/info", f.indexInfo)
	r.Post(base+"/{index}/insert", f.write(false))
	r.Post(base+"/{index}/upsert", f.write(true))
	r.Post(base+"/{index}/query", f.query)
	r.Post(base+"/{index}/get_by_ids", f.getByIDs)
	r.Post(base+"/{index}/delete_by_ids", f.deleteByIDs)
	r.Post(base+"/{index}/metadata_index/create", f.createMetadataIndex)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

// config returns a client config pointing at the fake.
func (f *fakeVectorize) config(index string, dimension int) Config {
	cfg := DefaultConfig().WithCredentials(testAccount, testToken).WithIndex(index, dimension)
	cfg.APIBaseURL = f.server.URL + "/client/v4"
	return cfg
}

// addIndex creates an index directly in the fake's state.
func (f *fakeVectorize) addIndex(name string, dimension int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes[name] = &fakeIndex{
		dimension:       dimension,
		metric:          MetricCosine,
		vectors:         map[string]vectorRecord{},
		metadataIndexes: map[string]string{},
	}
}

func (f *fakeVectorize) index(name string) *fakeIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexes[name]
}

func (f *fakeVectorize) setOverride(fn func(w http.ResponseWriter, r *http.Request) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override = fn
}

func (f *fakeVectorize) last() (string, http.Header, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath, f.lastHeader, f.lastBody
}

func (f *fakeVectorize) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		f.mu.Lock()
		f.lastPath = r.URL.Path
		f.lastHeader = r.Header.Clone()
		f.lastBody = body
		override := f.override
		f.mu.Unlock()

		if override != nil && override(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeVectorize) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			fail(w, http.StatusUnauthorized, 10000, "Authentication error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeVectorize) createIndex(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, 40001, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[req.Name]; ok {
		fail(w, http.StatusConflict, 3002, "vectorize.index.duplicate_name: index already exists")
		return
	}
	f.indexes[req.Name] = &fakeIndex{
		dimension:       req.Config.Dimensions,
		metric:          req.Config.Metric,
		vectors:         map[string]vectorRecord{},
		metadataIndexes: map[string]string{},
	}
	ok(w, indexInfo{Name: req.Name, Config: req.Config})
}

func (f *fakeVectorize) lookup(w http.ResponseWriter, r *http.Request) (*fakeIndex, string, bool) {
	name := chi.URLParam(r, "index")
	idx, found := f.indexes[name]
	if !found {
		fail(w, http.StatusNotFound, 3000, "vectorize.index.not_found")
	}
	return idx, name, found
}

func (f *fakeVectorize) getIndex(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, name, found := f.lookup(w, r)
	if !found {
		return
	}
	ok(w, indexInfo{Name: name, Config: indexConfig{Dimensions: idx.dimension, Metric: idx.metric}})
}

func (f *fakeVectorize) deleteIndex(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, name, found := f.lookup(w, r)
	if !found {
		return
	}
	delete(f.indexes, name)
	ok(w, nil)
}

func (f *fakeVectorize) indexInfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, _, found := f.lookup(w, r)
	if !found {
		return
	}
	ok(w, indexStats{Dimensions: idx.dimension, VectorCount: uint64(len(idx.vectors))})
}

func (f *fakeVectorize) write(upsert bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != contentTypeNDJSON {
			fail(w, http.StatusUnsupportedMediaType, 40026, "expected application/x-ndjson")
			return
		}
		var records []vectorRecord
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec vectorRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				fail(w, http.StatusBadRequest, 40003, "invalid ndjson line")
				return
			}
			records = append(records, rec)
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		idx, _, found := f.lookup(w, r)
		if !found {
			return
		}
		for _, rec := range records {
			if len(rec.Values) != idx.dimension {
				fail(w, http.StatusBadRequest, 40012, "vector dimension mismatch")
				return
			}
		}
		for _, rec := range records {
			if _, exists := idx.vectors[rec.ID]; exists && !upsert {
				continue
			}
			idx.vectors[rec.ID] = rec
		}
		ok(w, mutationResult{MutationID: "mut-1"})
	}
}

func (f *fakeVectorize) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, 40001, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx, _, found := f.lookup(w, r)
	if !found {
		return
	}

	var matches []queryMatch
	for _, rec := range idx.vectors {
		if rec.Namespace != req.Namespace {
			continue
		}
		keep, err := vectordb.Match(req.Filter, rec.Metadata)
		if err != nil {
			fail(w, http.StatusBadRequest, 40008, err.Error())
			return
		}
		if !keep {
			continue
		}
		m := queryMatch{ID: rec.ID, Score: cosine(req.Vector, rec.Values), Namespace: rec.Namespace}
		if req.ReturnMetadata == "all" {
			m.Metadata = rec.Metadata
		}
		if req.ReturnValues {
			m.Values = rec.Values
		}
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > req.TopK {
		matches = matches[:req.TopK]
	}
	ok(w, queryResult{Count: len(matches), Matches: matches})
}

func (f *fakeVectorize) getByIDs(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, 40001, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, _, found := f.lookup(w, r)
	if !found {
		return
	}
	out := []vectorRecord{}
	for _, id := range req.IDs {
		if rec, exists := idx.vectors[id]; exists {
			out = append(out, rec)
		}
	}
	ok(w, out)
}

func (f *fakeVectorize) deleteByIDs(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, 40001, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, _, found := f.lookup(w, r)
	if !found {
		return
	}
	for _, id := range req.IDs {
		delete(idx.vectors, id)
	}
	ok(w, mutationResult{MutationID: "mut-2"})
}

func (f *fakeVectorize) createMetadataIndex(w http.ResponseWriter, r *http.Request) {
	var req metadataIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, 40001, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, _, found := f.lookup(w, r)
	if !found {
		return
	}
	if _, exists := idx.metadataIndexes[req.PropertyName]; exists {
		fail(w, http.StatusConflict, 40025, "metadata index already exists")
		return
	}
	idx.metadataIndexes[req.PropertyName] = req.IndexType
	ok(w, mutationResult{MutationID: "mut-3"})
}

func ok(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"errors":   []any{},
		"messages": []any{},
		"result":   result,
	})
}

func fail(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":  false,
		"errors":   []map[string]any{{"code": code, "message": message}},
		"messages": []any{},
		"result":   nil,
	})
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
