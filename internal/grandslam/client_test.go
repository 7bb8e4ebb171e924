package grandslam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nab138/isideload/internal/plistutil"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(ClientInfo{ClientInfo: "<iPhone>", UserAgent: "akd/1.0"}, false)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestURLBagFetchesOnceAndCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, err := plistutil.WriteXML(plistutil.Dict{
			"urls": plistutil.Dict{"gsService": "https://example.invalid/grandslam/GsService2"},
		})
		if err != nil {
			t.Fatal(err)
		}
		w.Write(body)
	}))
	defer srv.Close()

	old := lookupURL
	lookupURL = srv.URL
	t.Cleanup(func() { lookupURL = old })

	c := newTestClient(t)

	bag, err := c.URLBag(context.Background())
	if err != nil {
		t.Fatalf("URLBag: %v", err)
	}
	if bag["gsService"] != "https://example.invalid/grandslam/GsService2" {
		t.Fatalf("bag[gsService] = %q", bag["gsService"])
	}

	if _, err := c.URLBag(context.Background()); err != nil {
		t.Fatalf("second URLBag call: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("lookup endpoint hit %d times, want 1 (sync.Once caching)", hits)
	}
}

func TestPlistRequestReturnsResponseDict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Mme-Client-Info"); got != "<iPhone>" {
			t.Errorf("X-Mme-Client-Info = %q", got)
		}
		body, err := plistutil.WriteXML(plistutil.Dict{
			"Response": plistutil.Dict{"sp": "s2k", "c": "cookie-value"},
		})
		if err != nil {
			t.Fatal(err)
		}
		w.Write(body)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.PlistRequest(context.Background(), srv.URL, plistutil.Dict{"Request": plistutil.Dict{}}, nil, false)
	if err != nil {
		t.Fatalf("PlistRequest: %v", err)
	}
	sp, err := plistutil.GetString(resp, "sp")
	if err != nil || sp != "s2k" {
		t.Fatalf("sp = %q, %v", sp, err)
	}
}

func TestCheckErrorSuccessStatusIsNil(t *testing.T) {
	doc := plistutil.Dict{"Status": plistutil.Dict{"ec": int64(0), "em": "Success"}}
	if err := CheckError(doc); err != nil {
		t.Fatalf("CheckError: %v", err)
	}
}

func TestCheckErrorNonZeroCode(t *testing.T) {
	doc := plistutil.Dict{"Status": plistutil.Dict{"ec": int64(-20101), "em": "Invalid username/password"}}
	err := CheckError(doc)
	if err == nil {
		t.Fatal("expected error for non-zero ec")
	}
	var gsErr *Error
	if !errors.As(err, &gsErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if gsErr.Code != -20101 || gsErr.Message != "Invalid username/password" {
		t.Fatalf("Error = %+v", gsErr)
	}
}
