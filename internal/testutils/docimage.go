package testutils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// PNG returns a small solid-colour PNG. Different seeds give different bytes.
func PNG(t testing.TB, w, h int, seed byte) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: seed, G: 255 - seed, B: seed / 2, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// DocImageServer is a fake DocImage endpoint serving one PNG per page.
type DocImageServer struct {
	*httptest.Server

	// Token is the only token accepted; other tokens get 403.
	Token string

	mu       sync.Mutex
	pages    map[int][]byte
	failures map[int][]int
	requests map[int]int
}

// StartDocImageServer serves pages [1, pages] for token.
func StartDocImageServer(t testing.TB, token string, pages int) *DocImageServer {
	t.Helper()

	s := &DocImageServer{
		Token:    token,
		pages:    make(map[int][]byte),
		failures: make(map[int][]int),
		requests: make(map[int]int),
	}
	for p := 1; p <= pages; p++ {
		s.pages[p] = PNG(t, 8, 8, byte(p))
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// FailPage makes the next requests for page answer with statuses, in
// order, before the page is served normally.
func (s *DocImageServer) FailPage(page int, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[page] = append(s.failures[page], statuses...)
}

// RemovePage makes page answer 404.
func (s *DocImageServer) RemovePage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, page)
}

// Requests returns how many requests page received.
func (s *DocImageServer) Requests(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[page]
}

// URL returns the DocImage endpoint.
func (s *DocImageServer) URL() string {
	return s.Server.URL + "/DocImage.axd"
}

func (s *DocImageServer) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("token") != s.Token {
		http.Error(w, "bad token", http.StatusForbidden)
		return
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests[page]++
	var status int
	if f := s.failures[page]; len(f) > 0 {
		status, s.failures[page] = f[0], f[1:]
	}
	data, ok := s.pages[page]
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}
