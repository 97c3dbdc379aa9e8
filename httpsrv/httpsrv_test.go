package httpsrv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tarcisiozf/dslot/engine"
)

const deviceID = "{4655F3A8-D531-11E5-9115-01A83A673161}"

func newTestServer(t *testing.T, options ...engine.ConfigOption) *httptest.Server {
	t.Helper()
	db, err := engine.NewEngine(options...)
	require.NoError(t, err)
	require.NoError(t, db.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	srv := httptest.NewServer(NewHttpServer(db, "0", nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, rawURL string, v any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHttpServer_Slot(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]any
	status := getJSON(t, srv.URL+"/slots/crc16/"+url.PathEscape(deviceID), &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, deviceID, body["id"])
	require.EqualValues(t, 6391, body["slot"])
	require.EqualValues(t, 16384, body["slots"])
	require.Equal(t, "redis 3", body["shard"])

	body = nil
	status = getJSON(t, srv.URL+"/slots/sha256/"+url.PathEscape(deviceID), &body)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 83, body["slot"])
	require.NotContains(t, body, "shard")

	body = nil
	status = getJSON(t, srv.URL+"/slots/crc16/"+url.PathEscape(deviceID)+"?slots=100", &body)
	require.Equal(t, http.StatusOK, status)
	require.NotContains(t, body, "shard")

	body = nil
	status = getJSON(t, srv.URL+"/slots/crc16/%20%20", &body)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, body["slot"])
	require.Equal(t, "error", body["shard"])

	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/slots/md5/abc", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/slots/crc16/abc?slots=0", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/slots/sha256/abc?slots=x", nil))
}

func TestHttpServer_Shard(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]string{
		"0":     "redis 1",
		"2730":  "redis 1",
		"2731":  "redis 2",
		"16383": "redis 6",
		"16384": "error",
		"-1":    "error",
		"abc":   "error",
	}
	for slot, want := range cases {
		var body map[string]string
		require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/shards/"+slot, &body))
		require.Equal(t, want, body["shard"], "slot %s", slot)
	}
}

func TestHttpServer_Batch(t *testing.T) {
	srv := newTestServer(t, engine.WithPersistence(true), engine.WithDirPath(t.TempDir()))

	input := deviceID + "\r\n\nfoo\n"
	resp, err := http.Post(srv.URL+"/batch?algorithm=crc16", "text/plain", strings.NewReader(input))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.BatchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Assignments, 3)
	require.Equal(t, deviceID, result.Assignments[0].ID)
	require.True(t, result.Assignments[1].Slot.IsNone())
	require.Equal(t, 1, result.Summary.Missing)
	require.Equal(t, 2, result.Saved)

	var records []map[string]any
	status := getJSON(t, srv.URL+"/ranges/crc16?start=6391&end=6391", &records)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, records, 1)
	require.Equal(t, deviceID, records[0]["id"])

	forget := func(path string) int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusNoContent, forget("/slots/crc16/"+url.PathEscape(deviceID)))
	require.Equal(t, http.StatusNotFound, forget("/slots/crc16/"+url.PathEscape(deviceID)))
	require.Equal(t, http.StatusNotFound, forget("/slots/md5/foo"))
	require.Equal(t, http.StatusBadRequest, forget("/slots/crc16/foo?slots=-1"))
	records = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/ranges/crc16?start=6391&end=6391", &records))
	require.Empty(t, records)

	resp, err = http.Post(srv.URL+"/batch?algorithm=nope", "text/plain", strings.NewReader("a"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHttpServer_RangeWithoutPersistence(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusNotImplemented, getJSON(t, srv.URL+"/ranges/crc16", nil))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/slots/crc16/foo", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHttpServer_Bands(t *testing.T) {
	srv := newTestServer(t)

	body := `{"slots":16384,"bands":[{"upper":8191,"name":"left"},{"upper":16383,"name":"right"}]}`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/bands", strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var shard map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/shards/8192", &shard))
	require.Equal(t, "right", shard["shard"])

	req, err = http.NewRequest(http.MethodPut, srv.URL+"/bands", strings.NewReader(`{"slots":16384,"bands":[{"upper":10,"name":"x"}]}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var info engine.Info
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/info", &info))
	require.Len(t, info.Bands, 2)
	require.Equal(t, []string{"crc16", "sha256", "xxhash"}, info.Algorithms)
}

func TestHttpServer_Metrics(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/shards/1", nil))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "dslot_engine_shard_lookups_total")
}
