package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"etlwatch/internal/server"
	"etlwatch/internal/status"
)

type fakeEvaluator struct {
	records []status.Record
}

func (f *fakeEvaluator) EvaluateAll(_ context.Context) []status.Record {
	return f.records
}

type fakeHistory struct {
	records      []status.Record
	total        int
	err          error
	lastPipeline string
	lastLimit    int
	lastOffset   int
}

func (f *fakeHistory) History(_ context.Context, pipeline string, limit, offset int) ([]status.Record, int, error) {
	f.lastPipeline = pipeline
	f.lastLimit = limit
	f.lastOffset = offset
	return f.records, f.total, f.err
}

func newTestServer(eval *fakeEvaluator, store *fakeHistory) *httptest.Server {
	return httptest.NewServer(server.New(eval, store, nil).Router())
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakeEvaluator{}, &fakeHistory{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleStatus(t *testing.T) {
	at := time.Date(2025, 10, 7, 11, 45, 0, 0, time.UTC)
	eval := &fakeEvaluator{records: []status.Record{
		{Pipeline: "FactCalls", Status: status.OK, Detail: "3h since last record", EvaluatedAt: at},
		{Pipeline: "FirstCalls", Status: status.Critical, Detail: "0 records (minimum 1)", EvaluatedAt: at},
	}}
	srv := newTestServer(eval, &fakeHistory{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	// The body is a plain JSON array of records.
	var records []struct {
		Pipeline    string `json:"pipeline"`
		Status      string `json:"status"`
		Detail      string `json:"detail"`
		EvaluatedAt string `json:"evaluated_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Pipeline != "FactCalls" || records[0].Status != "OK" {
		t.Errorf("record[0] = %+v", records[0])
	}
	if records[1].Status != "CRITICAL" || records[1].Detail != "0 records (minimum 1)" {
		t.Errorf("record[1] = %+v", records[1])
	}
	if records[0].EvaluatedAt == "" {
		t.Error("evaluated_at missing")
	}
}

func TestHandleHistory(t *testing.T) {
	store := &fakeHistory{
		records: []status.Record{{Pipeline: "FactCalls", Status: status.Warning, EvaluatedAt: time.Now()}},
		total:   7,
	}
	srv := newTestServer(&fakeEvaluator{}, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history?pipeline=FactCalls&limit=5&offset=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Records []json.RawMessage `json:"records"`
		Total   int               `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 7 || len(body.Records) != 1 {
		t.Errorf("total = %d, records = %d", body.Total, len(body.Records))
	}
	if store.lastPipeline != "FactCalls" || store.lastLimit != 5 || store.lastOffset != 2 {
		t.Errorf("query passed as %q/%d/%d", store.lastPipeline, store.lastLimit, store.lastOffset)
	}
}

func TestHandleHistory_Validation(t *testing.T) {
	srv := newTestServer(&fakeEvaluator{}, &fakeHistory{})
	defer srv.Close()

	cases := []struct {
		name string
		url  string
		code int
	}{
		{"missing pipeline", "/api/history", http.StatusBadRequest},
		{"bad limit", "/api/history?pipeline=p&limit=abc", http.StatusBadRequest},
		{"negative limit", "/api/history?pipeline=p&limit=-1", http.StatusBadRequest},
		{"bad offset", "/api/history?pipeline=p&offset=x", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.url)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.code)
			}
		})
	}
}

func TestHandleHistory_LimitClamped(t *testing.T) {
	store := &fakeHistory{}
	srv := newTestServer(&fakeEvaluator{}, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history?pipeline=p&limit=99999")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if store.lastLimit != 1000 {
		t.Errorf("limit = %d, want clamped to 1000", store.lastLimit)
	}
}

func TestHandleHistory_StoreError(t *testing.T) {
	store := &fakeHistory{err: errors.New("disk gone")}
	srv := newTestServer(&fakeEvaluator{}, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history?pipeline=p")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHandleHistory_EmptyRecordsIsArray(t *testing.T) {
	srv := newTestServer(&fakeEvaluator{}, &fakeHistory{total: 0})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history?pipeline=p")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Records == nil {
		t.Error("records serialized as null, want []")
	}
}
