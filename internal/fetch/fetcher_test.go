package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsplayd/internal/fetch"
	"hlsplayd/internal/logger"
	"hlsplayd/internal/model"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("segment-data"))
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(srv.Client(), logger.Nop{}, "test-agent")
	data, err := f.Fetch(context.Background(), model.Addressable{URL: srv.URL + "/seg0.m4s"})
	require.NoError(t, err)
	assert.Equal(t, []byte("segment-data"), data)
}

func TestFetchSendsRangeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=720-1719", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(srv.Client(), logger.Nop{}, "")
	data, err := f.Fetch(context.Background(), model.Addressable{
		URL:       srv.URL + "/all.mp4",
		ByteRange: &model.ByteRange{Start: 720, End: 1719},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("partial"), data)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(srv.Client(), logger.Nop{}, "")
	data, err := f.Fetch(context.Background(), model.Addressable{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(srv.Client(), logger.Nop{}, "")
	_, err := f.Fetch(context.Background(), model.Addressable{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchCancellationSurfacesAsContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := fetch.NewHTTPFetcher(srv.Client(), logger.Nop{}, "")
	_, err := f.Fetch(ctx, model.Addressable{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestFetchCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := fetch.NewHTTPFetcher(nil, logger.Nop{}, "")
	_, err := f.Fetch(ctx, model.Addressable{URL: "http://127.0.0.1:0/never"})
	assert.ErrorIs(t, err, context.Canceled)
}
