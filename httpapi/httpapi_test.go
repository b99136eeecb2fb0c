package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/health"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/registry"
	"github.com/cardano-chain-indexer/indexer/store"
	"github.com/cardano-chain-indexer/indexer/store/sqlite"
)

type fakeRollback struct {
	err    error
	target chainpoint.Point
}

func (f *fakeRollback) ForceRollback(target chainpoint.Point) error {
	f.target = target

	return f.err
}

type fakeFetcher struct {
	txs []*model.Tx
	err error
}

func (f *fakeFetcher) GetBlockTransactions(chainpoint.Point) ([]*model.Tx, error) {
	return f.txs, f.err
}

func pointAt(slot uint64, b byte) chainpoint.Point {
	var hash chainpoint.Hash
	hash[0] = b

	return chainpoint.NewPoint(slot, hash)
}

func newTestServer(t *testing.T, longestRollback uint64, rb Rollbacker, fetcher MetadataFetcher) (*Server, *sqlite.Store, *registry.Registry, *health.Cell) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "indexer.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := registry.Load(db)
	require.NoError(t, err)

	h := health.New("test")

	if rb == nil {
		rb = &fakeRollback{}
	}

	s := New(Config{LongestRollback: longestRollback}, db, reg, h, rb, fetcher, hclog.NewNullLogger())

	return s, db, reg, h
}

func insertCheckpoint(t *testing.T, db *sqlite.Store, p chainpoint.Point) {
	t.Helper()

	tx, err := db.BeginTx(store.ReadWrite)
	require.NoError(t, err)
	tx.InsertCheckpoints([]chainpoint.Point{p})
	require.NoError(t, tx.Execute())
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestHealthDefaultsToJSON(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, nil)

	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var out healthJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "disconnected", out.ConnectionStatus)
}

func TestHealthPrometheusOnTextPlain(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cardano_chain_indexer_connection_status")
}

func TestHealthRejectsUnsupportedAccept(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept", "application/xml")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestListCheckpointsDescending(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)

	insertCheckpoint(t, db, pointAt(5, 1))
	insertCheckpoint(t, db, pointAt(10, 2))

	rec := doRequest(s, http.MethodGet, "/checkpoints", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []pointJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, uint64(10), out[0].Slot)
	require.Equal(t, uint64(5), out[1].Slot)
	require.Equal(t, "10", rec.Header().Get("X-Most-Recent-Checkpoint"))
}

func TestGetCheckpointStrictRequiresExactSlot(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertCheckpoint(t, db, pointAt(10, 2))

	rec := doRequest(s, http.MethodGet, "/checkpoints/11?strict=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null\n", rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/checkpoints/11?strict=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out pointJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, uint64(10), out.Slot)
}

func TestGetCheckpointNonStrictNeverReturnsSuccessor(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertCheckpoint(t, db, pointAt(4, 1))
	insertCheckpoint(t, db, pointAt(6, 2))

	rec := doRequest(s, http.MethodGet, "/checkpoints/5?strict=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out pointJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, uint64(4), out.Slot)
}

func TestGetCheckpointInvalidSlot(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, nil)

	rec := doRequest(s, http.MethodGet, "/checkpoints/not-a-slot", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), hintInvalidSlotNo)
}

func insertResult(t *testing.T, db *sqlite.Store, addr string, createdAt chainpoint.Point, txID []byte, idx uint32) {
	t.Helper()

	tx, err := db.BeginTx(store.ReadWrite)
	require.NoError(t, err)
	tx.InsertCheckpoints([]chainpoint.Point{createdAt})
	tx.InsertInputs([]*model.Result{{
		OutputRef: model.OutputRef{TxID: txID, Index: idx},
		Address:   addr,
		Value:     model.Value{Lovelace: 5_000_000},
		CreatedAt: createdAt,
	}})
	require.NoError(t, tx.Execute())
}

func TestListMatchesStreamsResults(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertResult(t, db, "addr1abc", pointAt(5, 1), []byte("tx1"), 0)

	rec := doRequest(s, http.MethodGet, "/matches", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []resultJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "addr1abc", out[0].Address)
}

func TestListMatchesFiltersByPathPattern(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertResult(t, db, "addr1abc", pointAt(5, 1), []byte("tx1"), 0)
	insertResult(t, db, "addr1xyz", pointAt(6, 2), []byte("tx2"), 0)

	rec := doRequest(s, http.MethodGet, "/matches/addr1abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []resultJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "addr1abc", out[0].Address)
}

func TestDeleteMatchesRefusesOverlappingPattern(t *testing.T) {
	s, db, reg, _ := newTestServer(t, 10, nil, nil)
	insertResult(t, db, "addr1abc", pointAt(5, 1), []byte("tx1"), 0)

	_, err := reg.Add([]pattern.Pattern{pattern.Any()})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodDelete, "/matches/addr1abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), hintStillActivePattern)
}

func TestDeleteMatchesDeletesNonOverlapping(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertResult(t, db, "addr1abc", pointAt(5, 1), []byte("tx1"), 0)

	rec := doRequest(s, http.MethodDelete, "/matches/addr1abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"deleted":1}`, rec.Body.String())
}

func TestGetDatumRoundTrip(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)

	tx, err := db.BeginTx(store.ReadWrite)
	require.NoError(t, err)
	tx.InsertBinaryData([]*model.BinaryData{{Hash: []byte{0xAA}, Bytes: []byte("datum-bytes")}})
	require.NoError(t, tx.Execute())

	rec := doRequest(s, http.MethodGet, "/datums/aa", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"datum":"646174756d2d6279746573"}`, rec.Body.String())
}

func TestGetDatumMalformedHash(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, nil)

	rec := doRequest(s, http.MethodGet, "/datums/not-hex", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), hintMalformedDatumHash)
}

func TestGetDatumMissingReturnsNull(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, nil)

	rec := doRequest(s, http.MethodGet, "/datums/ab", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null\n", rec.Body.String())
}

func TestListPatternsIntersectsActiveSet(t *testing.T) {
	s, _, reg, _ := newTestServer(t, 10, nil, nil)

	_, err := reg.Add([]pattern.Pattern{pattern.ExactAddress("addr1abc")})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodGet, "/patterns/addr1abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `["addr1abc"]`, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/patterns/addr1xyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestPutPatternsRejectsInvalidPatterns(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertCheckpoint(t, db, pointAt(10, 1))

	body := []byte(`{"rollback_to":10,"limit":"any","patterns":["not/a/valid/pattern"]}`)
	rec := doRequest(s, http.MethodPut, "/patterns", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), hintInvalidPatterns)
}

func TestPutPatternsRejectsUnsafeRollback(t *testing.T) {
	rb := &fakeRollback{}
	s, db, _, h := newTestServer(t, 5, rb, nil)
	insertCheckpoint(t, db, pointAt(100, 9))
	insertCheckpoint(t, db, pointAt(70, 7))
	h.SetNodeTip(100)

	body := []byte(`{"rollback_to":70,"limit":"within_safe_zone","patterns":["addr1abc"]}`)
	rec := doRequest(s, http.MethodPut, "/patterns", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), hintUnsafeRollbackBeyondSafeZone)
}

func TestPutPatternsSucceedsAndMergesRegistry(t *testing.T) {
	rb := &fakeRollback{}
	s, db, reg, h := newTestServer(t, 100, rb, nil)
	insertCheckpoint(t, db, pointAt(100, 9))
	insertCheckpoint(t, db, pointAt(70, 7))
	h.SetNodeTip(100)

	body := []byte(`{"rollback_to":70,"limit":"within_safe_zone","patterns":["addr1abc"]}`)
	rec := doRequest(s, http.MethodPut, "/patterns", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Contains(t, out, "addr1abc")
	require.Equal(t, uint64(70), rb.target.Slot)
	require.Len(t, reg.Snapshot(), 1)
}

func TestPutPatternsReportsFailedRollback(t *testing.T) {
	rb := &fakeRollback{err: errors.New("producer no longer has it")}
	s, db, _, _ := newTestServer(t, 100, rb, nil)
	insertCheckpoint(t, db, pointAt(70, 7))

	body := []byte(`{"rollback_to":70,"limit":"any","patterns":["addr1abc"]}`)
	rec := doRequest(s, http.MethodPut, "/patterns", body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), hintFailedToRollback)
}

func TestPutPatternsAcceptsExactSlotWithLaterCheckpointPresent(t *testing.T) {
	rb := &fakeRollback{}
	s, db, _, _ := newTestServer(t, 100, rb, nil)
	insertCheckpoint(t, db, pointAt(70, 7))
	insertCheckpoint(t, db, pointAt(71, 8))

	body := []byte(`{"rollback_to":70,"limit":"any","patterns":["addr1abc"]}`)
	rec := doRequest(s, http.MethodPut, "/patterns", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(70), rb.target.Slot)
}

func TestPutPatternsRejectsNonExistingExactSlot(t *testing.T) {
	rb := &fakeRollback{}
	s, _, _, _ := newTestServer(t, 100, rb, nil)

	body := []byte(`{"rollback_to":70,"limit":"any","patterns":["addr1abc"]}`)
	rec := doRequest(s, http.MethodPut, "/patterns", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), hintNonExistingPoint)
}

func TestDeletePatternReportsCount(t *testing.T) {
	s, _, reg, _ := newTestServer(t, 10, nil, nil)
	_, err := reg.Add([]pattern.Pattern{pattern.ExactAddress("addr1abc")})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodDelete, "/patterns/addr1abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"deleted":1}`, rec.Body.String())

	rec = doRequest(s, http.MethodDelete, "/patterns/addr1abc", nil)
	require.JSONEq(t, `{"deleted":0}`, rec.Body.String())
}

func TestGetMetadataStreamsPerTransaction(t *testing.T) {
	fetcher := &fakeFetcher{txs: []*model.Tx{
		{ID: []byte{0x01}, Metadata: []byte(`{"674":{"msg":["hi"]}}`)},
		{ID: []byte{0x02}},
	}}

	s, db, _, _ := newTestServer(t, 10, nil, fetcher)
	insertCheckpoint(t, db, pointAt(50, 3))

	rec := doRequest(s, http.MethodGet, "/metadata/55", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []txMetadataJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.NotEmpty(t, rec.Header().Get("X-Block-Header-Hash"))
}

func TestGetMetadataWithoutFetcherIsUnavailable(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertCheckpoint(t, db, pointAt(50, 3))

	rec := doRequest(s, http.MethodGet, "/metadata/50", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetMetadataNoAncestorReturns404(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, &fakeFetcher{})

	rec := doRequest(s, http.MethodGet, "/metadata/5", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), hintNoAncestor)
}

func TestVersionPrefixIsStripped(t *testing.T) {
	s, db, _, _ := newTestServer(t, 10, nil, nil)
	insertCheckpoint(t, db, pointAt(5, 1))

	rec := doRequest(s, http.MethodGet, "/v1/checkpoints", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []pointJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
}

func TestUnknownRouteReturns404(t *testing.T) {
	s, _, _, _ := newTestServer(t, 10, nil, nil)

	rec := doRequest(s, http.MethodGet, "/nonexistent", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
