package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPlaces_DecodeAndFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"cafe-1","name":"Le Sud","lat":48.8566,"lon":2.3522,"orientationDeg":180},
			{"id":"","name":"anonymous","lat":48.85,"lon":2.35},
			{"id":"cafe-2","name":"offgrid","lat":123.0,"lon":2.35},
			{"id":"cafe-3","lat":48.86,"lon":2.34,"attributes":{"terrace":true}}
		]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client(), time.Second, nil)
	require.NoError(t, err)

	got, err := c.Places(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "cafe-1", got[0].ID)
	require.Equal(t, 180.0, got[0].OrientationDeg)
	require.Equal(t, "cafe-3", got[1].ID)
	require.Equal(t, true, got[1].Attributes["terrace"])
}

func TestPlaces_EmptyDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client(), time.Second, nil)
	require.NoError(t, err)

	got, err := c.Places(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPlaces_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client(), time.Second, nil)
	require.NoError(t, err)

	_, err = c.Places(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=500")
}

func TestPlaces_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client(), time.Second, nil)
	require.NoError(t, err)

	_, err = c.Places(context.Background())
	require.Error(t, err)
}
