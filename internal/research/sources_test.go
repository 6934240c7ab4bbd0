package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveTitles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, `<html><head><title>  A   Fine
  Page </title></head><body></body></html>`)
		case "/untitled":
			fmt.Fprint(w, `<html><head></head><body>no title here</body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	urls := []string{srv.URL + "/ok", srv.URL + "/untitled", "http://127.0.0.1:1/unreachable"}
	got := ResolveTitles(context.Background(), urls)

	if title := got[urls[0]]; title != "A Fine Page" {
		t.Errorf("title = %q, want %q", title, "A Fine Page")
	}
	if _, ok := got[urls[1]]; ok {
		t.Error("untitled page should be absent")
	}
	if _, ok := got[urls[2]]; ok {
		t.Error("unreachable page should be absent")
	}
}

func TestResolveTitlesTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>%s</title></head></html>", long)
	}))
	defer srv.Close()

	got := ResolveTitles(context.Background(), []string{srv.URL})
	if len(got[srv.URL]) != maxTitleLength {
		t.Errorf("title length = %d, want %d", len(got[srv.URL]), maxTitleLength)
	}
}
