package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cfip_nexus/internal/shared/types"
)

// speedTable mimics the layout of the ranking pages: address in column 0,
// download speed in column 5.
const speedTable = `<html><body>
<table>
  <tr><th>线路</th><th>优选地址</th><th>丢包</th><th>延迟</th><th>速度</th><th>下载速度</th></tr>
  <tr><td>104.16.1.1</td><td>x</td><td>0%</td><td>80</td><td>-</td><td>1.50 MB/s</td></tr>
  <tr><td>104.16.1.2</td><td>x</td><td>0%</td><td>82</td><td>-</td><td>900.00KB/s</td></tr>
  <tr><td>104.16.1.3</td><td>x</td><td>0%</td><td>90</td><td>-</td><td>12.00MB/s</td></tr>
  <tr><td>not an ip</td><td>x</td><td>0%</td><td>90</td><td>-</td><td>99.00MB/s</td></tr>
  <tr><td>104.16.1.4</td><td>x</td><td>0%</td><td>90</td><td>-</td><td>pending</td></tr>
  <tr><td>104.16.1.5</td><td>short row</td></tr>
  <tr><td>IP: 104.16.1.6 (edge)</td><td>x</td><td>0%</td><td>95</td><td>-</td><td>1.50MB/s</td></tr>
</table>
</body></html>`

func tableSpec() types.SourceSpec {
	return types.SourceSpec{
		Name:          "ranked",
		Kind:          types.SourceKindTable,
		URL:           "https://ranked.example/",
		AddressColumn: 0,
		SpeedColumn:   5,
	}
}

func TestParseTable_SortsAndSkips(t *testing.T) {
	got, err := ParseTable(strings.NewReader(speedTable), tableSpec())
	if err != nil {
		t.Fatal(err)
	}

	want := []struct{ addr, speed string }{
		{"104.16.1.3", "12.00MB/s"},
		{"104.16.1.1", "1.50 MB/s"},
		{"104.16.1.6", "1.50MB/s"}, // tie with .1, keeps row order
		{"104.16.1.2", "900.00KB/s"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Address != w.addr || got[i].Speed != w.speed {
			t.Errorf("candidate %d = (%s, %s), want (%s, %s)", i, got[i].Address, got[i].Speed, w.addr, w.speed)
		}
		if got[i].Source != "ranked" {
			t.Errorf("candidate %d has source %q", i, got[i].Source)
		}
	}
}

func TestParseTable_TruncatesToTopFive(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<table><tr><th>ip</th><th>speed</th></tr>")
	for i := 1; i <= 9; i++ {
		fmt.Fprintf(&sb, "<tr><td>10.0.0.%d</td><td>%d.00MB/s</td></tr>", i, i)
	}
	sb.WriteString("</table>")

	spec := types.SourceSpec{Name: "many", Kind: types.SourceKindTable, URL: "https://m.example/", AddressColumn: 0, SpeedColumn: 1}
	got, err := ParseTable(strings.NewReader(sb.String()), spec)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != TopPerSource {
		t.Fatalf("expected %d candidates, got %d", TopPerSource, len(got))
	}
	if got[0].Address != "10.0.0.9" || got[4].Address != "10.0.0.5" {
		t.Errorf("unexpected ordering: %+v", got)
	}
}

func TestParseTable_NoTable(t *testing.T) {
	_, err := ParseTable(strings.NewReader("<html><body><p>maintenance</p></body></html>"), tableSpec())
	if !errors.Is(err, ErrNoTable) {
		t.Fatalf("expected ErrNoTable, got %v", err)
	}
}

func TestParseTable_IgnoresNestedTables(t *testing.T) {
	doc := `<table>
<tr><th>ip</th><th>speed</th></tr>
<tr><td>1.1.1.1</td><td>2.00MB/s</td></tr>
<tr><td colspan="2"><table><tr><td>9.9.9.9</td><td>50.00MB/s</td></tr></table></td></tr>
</table>`
	spec := types.SourceSpec{Name: "n", Kind: types.SourceKindTable, URL: "https://n.example/", AddressColumn: 0, SpeedColumn: 1}
	got, err := ParseTable(strings.NewReader(doc), spec)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Address != "1.1.1.1" {
		t.Fatalf("expected only the outer row, got %+v", got)
	}
}

func TestParseTable_LayoutDrift(t *testing.T) {
	spec := tableSpec()
	spec.ExpectHeaders = map[int]string{5: "下载速度"}
	if _, err := ParseTable(strings.NewReader(speedTable), spec); err != nil {
		t.Fatalf("matching header rejected: %v", err)
	}

	spec.ExpectHeaders = map[int]string{5: "latency"}
	_, err := ParseTable(strings.NewReader(speedTable), spec)
	if !errors.Is(err, ErrLayoutDrift) {
		t.Fatalf("expected ErrLayoutDrift, got %v", err)
	}
}

func TestParsePlainText(t *testing.T) {
	got := ParsePlainText([]byte("1.2.3.4\n not-an-ip \n5.6.7.8\n"), "list")
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Address != "1.2.3.4" || got[1].Address != "5.6.7.8" {
		t.Errorf("unexpected addresses: %+v", got)
	}
	for _, c := range got {
		if c.Ranked() {
			t.Errorf("plain-text candidate %s should carry no speed", c.Address)
		}
	}
}

func TestParsePlainText_AnchoredAndUncapped(t *testing.T) {
	body := "1.1.1.1\r\n1.1.1.1\n2.2.2.2 # comment\n\n3.3.3.3:443\n  4.4.4.4  \n5.5.5.5\n6.6.6.6\n7.7.7.7\n"
	got := ParsePlainText([]byte(body), "list")
	want := []string{"1.1.1.1", "1.1.1.1", "4.4.4.4", "5.5.5.5", "6.6.6.6", "7.7.7.7"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %+v", want, got)
	}
	for i := range want {
		if got[i].Address != want[i] {
			t.Errorf("candidate %d = %s, want %s", i, got[i].Address, want[i])
		}
	}
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	spec := tableSpec()
	spec.SpeedColumn = 1000
	if _, err := New(spec, FetchOptions{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTableSource_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "cfip-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, speedTable)
	}))
	defer srv.Close()

	spec := tableSpec()
	spec.URL = srv.URL
	src, err := New(spec, FetchOptions{Timeout: 5 * time.Second, UserAgent: "cfip-test"})
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind() != types.SourceKindTable {
		t.Errorf("expected table kind, got %s", src.Kind())
	}

	got, err := src.Scrape(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0].Address != "104.16.1.3" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestTableSource_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	spec := tableSpec()
	spec.URL = srv.URL
	src, err := New(spec, FetchOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Scrape(context.Background()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestTableSource_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	spec := tableSpec()
	spec.URL = srv.URL
	src, err := New(spec, FetchOptions{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := src.Scrape(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout was not enforced")
	}
}

func TestPlainTextSource_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "1.2.3.4\n not-an-ip \n5.6.7.8\n")
	}))
	defer srv.Close()

	spec := types.SourceSpec{Name: "list", Kind: types.SourceKindPlainText, URL: srv.URL}
	src, err := New(spec, FetchOptions{Timeout: 5 * time.Second, UserAgent: "cfip-test"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := src.Scrape(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Address != "1.2.3.4" || got[1].Address != "5.6.7.8" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestPlainTextSource_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
	}))
	defer srv.Close()

	spec := types.SourceSpec{Name: "list", Kind: types.SourceKindPlainText, URL: srv.URL}
	src, err := New(spec, FetchOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	got, err := src.Scrape(context.Background())
	if err != nil {
		t.Fatalf("empty body should not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestPlainTextSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	spec := types.SourceSpec{Name: "list", Kind: types.SourceKindPlainText, URL: srv.URL}
	src, err := New(spec, FetchOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Scrape(context.Background()); err == nil {
		t.Fatal("expected error for 404")
	}
}
