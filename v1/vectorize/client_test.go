package vectorize

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb/vectordbtest"
)

const testDimension = 8

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientConformance(t *testing.T) {
	for _, upsert := range []bool{false, true} {
		name := "insert"
		if upsert {
			name = "upsert"
		}
		t.Run(name, func(t *testing.T) {
			f := newFakeVectorize(t)
			n := 0
			vectordbtest.Run(t, vectordbtest.Harness{
				Dimension: testDimension,
				NewStore: func(t *testing.T) vectordb.Store {
					n++
					cfg := f.config(fmt.Sprintf("conformance-%d", n), testDimension)
					cfg.Upsert = upsert
					cfg.ReturnValues = true
					cfg = cfg.WithMetadataIndex("tag", IndexTypeString).WithMetadataIndex("rank", IndexTypeNumber)
					c := newTestClient(t, cfg)
					require.NoError(t, c.Initialize(context.Background()))
					return c
				},
				Calls: f.calls.Load,
				Capabilities: vectordbtest.Capabilities{
					Overwrite:      upsert,
					ReturnsVectors: true,
				},
			})
		})
	}
}

func TestExampleScenario(t *testing.T) {
	f := newFakeVectorize(t)
	c := newTestClient(t, f.config("example", 2))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	require.NoError(t, c.Insert(ctx,
		[][]float32{{0.1, 0.2}, {0.9, 0.8}},
		[]string{"a", "b"},
		[]map[string]any{{"tag": "x"}, {"tag": "y"}},
	))

	results, err := c.Search(ctx, []float32{0.1, 0.2}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, map[string]any{"tag": "x"}, results[0].Payload)
}

func TestInsertWireFormat(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("wire", 2)
	c := newTestClient(t, f.config("wire", 2).WithNamespace("tenant-a"))

	err := c.Insert(context.Background(),
		[][]float32{{0.1, 0.2}, {0.3, 0.4}},
		[]string{"a", "b"},
		[]map[string]any{{"tag": "x"}, nil},
	)
	require.NoError(t, err)

	path, header, body := f.last()
	assert.Equal(t, "/client/v4/accounts/acc-123/vectorize/v2/indexes/wire/insert", path)
	assert.Equal(t, "application/x-ndjson", header.Get("Content-Type"))
	assert.Equal(t, "Bearer test-token", header.Get("Authorization"))

	var lines []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0]["id"])
	assert.Equal(t, []any{0.1, 0.2}, lines[0]["values"])
	assert.Equal(t, map[string]any{"tag": "x"}, lines[0]["metadata"])
	assert.Equal(t, "tenant-a", lines[0]["namespace"])
	assert.Equal(t, map[string]any{}, lines[1]["metadata"])
}

func TestUpsertEndpoint(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("up", 2)
	cfg := f.config("up", 2)
	cfg.Upsert = true
	c := newTestClient(t, cfg)

	require.NoError(t, c.Insert(context.Background(), [][]float32{{1, 0}}, []string{"a"}, []map[string]any{nil}))
	path, _, _ := f.last()
	assert.True(t, strings.HasSuffix(path, "/up/upsert"), path)
}

func TestInsertEmptyBatchSendsNothing(t *testing.T) {
	f := newFakeVectorize(t)
	c := newTestClient(t, f.config("empty", 2))

	require.NoError(t, c.Insert(context.Background(), nil, nil, nil))
	assert.Zero(t, f.calls.Load())
}

func TestInsertRejectsUnencodablePayloadWithoutRequest(t *testing.T) {
	f := newFakeVectorize(t)
	c := newTestClient(t, f.config("bad", 1))

	err := c.Insert(context.Background(), [][]float32{{1}}, []string{"a"}, []map[string]any{{"f": func() {}}})
	assert.True(t, vectordb.IsInvalidArgumentError(err))
	assert.Zero(t, f.calls.Load())
}

func TestSearchRequestBody(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("q", 2)
	c := newTestClient(t, f.config("q", 2).WithNamespace("tenant-b"))

	filter := vectordb.Eq("user_id", "alice").And(vectordb.Gte("score", 0.5))
	_, err := c.Search(context.Background(), []float32{1, 0}, 3, filter)
	require.NoError(t, err)

	path, header, body := f.last()
	assert.True(t, strings.HasSuffix(path, "/q/query"), path)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.JSONEq(t, `{
		"vector": [1, 0],
		"topK": 3,
		"returnMetadata": "all",
		"returnValues": false,
		"namespace": "tenant-b",
		"filter": {"user_id": {"$eq": "alice"}, "score": {"$gte": 0.5}}
	}`, string(body))
}

func TestSearchForwardsTypedOperatorObjects(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("q", 2)
	c := newTestClient(t, f.config("q", 2))

	filter := vectordb.Filter{
		"tag":   vectordb.Filter{"$eq": "x"},
		"score": map[string]float64{"$gte": 0.5},
	}
	_, err := c.Search(context.Background(), []float32{1, 0}, 3, filter)
	require.NoError(t, err)

	_, _, body := f.last()
	var req struct {
		Filter map[string]map[string]any `json:"filter"`
	}
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, map[string]map[string]any{
		"tag":   {"$eq": "x"},
		"score": {"$gte": 0.5},
	}, req.Filter)
}

func TestSearchOmitsEmptyFilter(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("q", 2)
	c := newTestClient(t, f.config("q", 2))

	_, err := c.Search(context.Background(), []float32{1, 0}, 1, vectordb.Filter{})
	require.NoError(t, err)

	_, _, body := f.last()
	assert.NotContains(t, string(body), "filter")
}

func TestSearchTruncatesToLimit(t *testing.T) {
	f := newFakeVectorize(t)
	f.setOverride(func(w http.ResponseWriter, r *http.Request) bool {
		ok(w, queryResult{Count: 3, Matches: []queryMatch{
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.8},
			{ID: "c", Score: 0.7},
		}})
		return true
	})
	c := newTestClient(t, f.config("q", 2))

	results, err := c.Search(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[1].ID)
	assert.NotNil(t, results[0].Payload)
}

func TestRemoteFailure(t *testing.T) {
	f := newFakeVectorize(t)
	f.setOverride(func(w http.ResponseWriter, r *http.Request) bool {
		fail(w, http.StatusInternalServerError, 1001, "internal error")
		return true
	})
	c := newTestClient(t, f.config("q", 2))

	_, err := c.Search(context.Background(), []float32{1, 0}, 1, nil)
	require.Error(t, err)
	assert.True(t, vectordb.IsRemoteFailureError(err))

	var remote *vectordb.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusInternalServerError, remote.StatusCode)
	assert.Equal(t, []vectordb.RemoteMessage{{Code: 1001, Message: "internal error"}}, remote.Messages)

	var op *vectordb.OpError
	require.True(t, errors.As(err, &op))
	assert.Equal(t, "vectorize", op.Backend)
	assert.Equal(t, "search", op.Op)
}

func TestUnsuccessfulEnvelopeWithOKStatus(t *testing.T) {
	f := newFakeVectorize(t)
	f.setOverride(func(w http.ResponseWriter, r *http.Request) bool {
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":7,"message":"nope"}],"messages":[],"result":null}`))
		return true
	})
	c := newTestClient(t, f.config("q", 2))

	err := c.Delete(context.Background(), "a")
	assert.True(t, vectordb.IsRemoteFailureError(err))
	assert.Contains(t, err.Error(), `delete (id "a")`)
}

func TestWrongTokenIsRemoteFailure(t *testing.T) {
	f := newFakeVectorize(t)
	cfg := f.config("q", 2)
	cfg.APIToken = "wrong"
	c := newTestClient(t, cfg)

	_, err := c.Get(context.Background(), "a")
	var remote *vectordb.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
}

func TestTransportErrorIsRemoteFailure(t *testing.T) {
	f := newFakeVectorize(t)
	cfg := f.config("q", 2)
	f.server.Close()
	c := newTestClient(t, cfg)

	_, err := c.Get(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, vectordb.IsRemoteFailureError(err))

	var remote *vectordb.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Zero(t, remote.StatusCode)
}

func TestMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>gateway</html>`},
		{"missing result", `{"success":true,"errors":[],"messages":[]}`},
		{"match without id", `{"success":true,"errors":[],"messages":[],"result":{"count":1,"matches":[{"score":0.5}]}}`},
		{"wrong result shape", `{"success":true,"errors":[],"messages":[],"result":{"count":"one"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeVectorize(t)
			f.setOverride(func(w http.ResponseWriter, r *http.Request) bool {
				_, _ = w.Write([]byte(tt.body))
				return true
			})
			c := newTestClient(t, f.config("q", 2))

			_, err := c.Search(context.Background(), []float32{1, 0}, 1, nil)
			require.Error(t, err)
			assert.True(t, vectordb.IsMalformedResponseError(err), "got %v", err)
		})
	}
}

func TestGetIgnoresForeignRecords(t *testing.T) {
	f := newFakeVectorize(t)
	f.setOverride(func(w http.ResponseWriter, r *http.Request) bool {
		ok(w, []vectorRecord{{ID: "other"}})
		return true
	})
	c := newTestClient(t, f.config("q", 2))

	_, err := c.Get(context.Background(), "a")
	assert.True(t, vectordb.IsMalformedResponseError(err))
}

func TestInitializeCreatesIndexAndMetadataIndexes(t *testing.T) {
	f := newFakeVectorize(t)
	cfg := f.config("fresh", 4).WithMetadataIndex("user_id", IndexTypeString)
	cfg.Metric = MetricDotProduct
	c := newTestClient(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Initialize(ctx))

	idx := f.index("fresh")
	require.NotNil(t, idx)
	assert.Equal(t, 4, idx.dimension)
	assert.Equal(t, MetricDotProduct, idx.metric)
	assert.Equal(t, map[string]string{"user_id": IndexTypeString}, idx.metadataIndexes)
}

func TestInitializeDimensionMismatch(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("existing", 3)
	c := newTestClient(t, f.config("existing", 4))

	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, vectordb.IsDimensionMismatchError(err))

	var dim *vectordb.DimensionError
	require.True(t, errors.As(err, &dim))
	assert.Equal(t, 4, dim.Expected)
	assert.Equal(t, 3, dim.Actual)
}

func TestInitializeToleratesConcurrentCreate(t *testing.T) {
	f := newFakeVectorize(t)
	var once sync.Once
	f.setOverride(func(w http.ResponseWriter, r *http.Request) bool {
		handled := false
		if r.Method == http.MethodGet {
			once.Do(func() {
				// The index appears right after our existence check.
				fail(w, http.StatusNotFound, 3000, "vectorize.index.not_found")
				f.addIndex("race", 2)
				handled = true
			})
		}
		return handled
	})
	c := newTestClient(t, f.config("race", 2))

	require.NoError(t, c.Initialize(context.Background()))
}

func TestDeleteCollection(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("doomed", 2)
	c := newTestClient(t, f.config("doomed", 2))
	ctx := context.Background()

	require.NoError(t, c.DeleteCollection(ctx))
	assert.Nil(t, f.index("doomed"))

	// Already gone.
	require.NoError(t, c.DeleteCollection(ctx))
}

func TestDescribe(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("described", 2)
	c := newTestClient(t, f.config("described", 2))
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, [][]float32{{1, 0}, {0, 1}}, []string{"a", "b"}, []map[string]any{nil, nil}))

	info, err := c.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, &vectordb.Collection{Name: "described", Dimension: 2, Metric: MetricCosine, Count: 2}, info)
}

func TestUnsupportedOperationsSendNothing(t *testing.T) {
	f := newFakeVectorize(t)
	c := newTestClient(t, f.config("q", 2))
	ctx := context.Background()

	assert.True(t, vectordb.IsNotImplementedError(c.Update(ctx, "a", []float32{1, 0}, nil)))
	_, _, err := c.List(ctx, nil, 10)
	assert.True(t, vectordb.IsNotImplementedError(err))
	_, err = c.GetUserID(ctx)
	assert.True(t, vectordb.IsNotImplementedError(err))
	assert.True(t, vectordb.IsNotImplementedError(c.SetUserID(ctx, "u")))

	assert.Zero(t, f.calls.Load())
}

func TestRateLimiter(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("limited", 2)
	c := newTestClient(t, f.config("limited", 2).WithRateLimit(0.5, 1))

	_, err := c.Get(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, "a")
	require.Error(t, err)
	assert.EqualValues(t, 1, f.calls.Load())
}

type recordingObserver struct {
	mu         sync.Mutex
	operations []observability.OperationContext
}

func (o *recordingObserver) ObserveOperation(ctx observability.OperationContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.operations = append(o.operations, ctx)
}

func TestObserver(t *testing.T) {
	f := newFakeVectorize(t)
	f.addIndex("observed", 2)
	obs := &recordingObserver{}
	c := newTestClient(t, f.config("observed", 2).WithNamespace("ns")).WithObserver(obs)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, [][]float32{{1, 0}}, []string{"a"}, []map[string]any{nil}))
	_ = c.Update(ctx, "a", nil, nil)

	require.Len(t, obs.operations, 2)
	insert := obs.operations[0]
	assert.Equal(t, "vectorize", insert.Component)
	assert.Equal(t, "insert", insert.Operation)
	assert.Equal(t, "observed", insert.Resource)
	assert.Equal(t, "batch of 1", insert.SubResource)
	assert.EqualValues(t, 1, insert.Size)
	assert.Equal(t, "ns", insert.Metadata["namespace"])

	assert.True(t, vectordb.IsNotImplementedError(obs.operations[1].Error))
}

func TestLoggerReceivesRequestEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := NewMockLogger(ctrl)
	log.EXPECT().DebugWithContext(gomock.Any(), "vectorize request", gomock.Nil(), gomock.Any()).Times(1)
	log.EXPECT().Info("vectorize client closed", gomock.Nil(), gomock.Any()).Times(1)

	f := newFakeVectorize(t)
	f.addIndex("logged", 2)
	c := newTestClient(t, f.config("logged", 2)).WithLogger(log)

	_, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestTracePropagation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	f := newFakeVectorize(t)
	f.addIndex("traced", 2)
	c := newTestClient(t, f.config("traced", 2))

	_, err := c.Search(context.Background(), []float32{1, 0}, 1, nil)
	require.NoError(t, err)

	_, header, _ := f.last()
	assert.NotEmpty(t, header.Get("traceparent"))

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "vectorize.search")
	assert.Contains(t, names, "vectorize.http POST")
}

func TestConfigValidation(t *testing.T) {
	valid := DefaultConfig().WithCredentials("acc", "tok").WithIndex("idx", 4)
	_, err := NewClient(valid)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing account", func(c *Config) { c.AccountID = "" }},
		{"missing token", func(c *Config) { c.APIToken = "" }},
		{"missing index", func(c *Config) { c.IndexName = "" }},
		{"negative dimension", func(c *Config) { c.Dimension = -1 }},
		{"bad metric", func(c *Config) { c.Metric = "manhattan" }},
		{"bad metadata index type", func(c *Config) { c.MetadataIndexes = map[string]string{"k": "date"} }},
		{"bad base url", func(c *Config) { c.APIBaseURL = "not a url" }},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewClient(cfg)
			require.Error(t, err)
			assert.True(t, vectordb.IsInvalidArgumentError(err))
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{AccountID: "a", APIToken: "t", IndexName: "i", RequestsPerSecond: 5}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultDimension, cfg.Dimension)
	assert.Equal(t, MetricCosine, cfg.Metric)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, 1, cfg.Burst)
}
