package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveURL(t *testing.T) {
	testCases := []struct {
		name      string
		base      string
		candidate string
		want      string
	}{
		{name: "dot segments from directory base", base: "http://example.com/a/b/", candidate: "../c.jpg", want: "http://example.com/a/c.jpg"},
		{name: "dot segments from document base", base: "http://example.com/a/b", candidate: "../c.jpg", want: "http://example.com/c.jpg"},
		{name: "sibling document", base: "http://example.com/a/b", candidate: "c.html", want: "http://example.com/a/c.html"},
		{name: "absolute path", base: "http://example.com/a/b", candidate: "/img/x.png", want: "http://example.com/img/x.png"},
		{name: "query and fragment kept", base: "http://example.com/a/", candidate: "p?q=1#top", want: "http://example.com/a/p?q=1#top"},
		{name: "scheme relative gets http", base: "https://example.com/", candidate: "//cdn.example.com/x.gif", want: "http://cdn.example.com/x.gif"},
		{name: "fully qualified unchanged", base: "http://example.com/", candidate: "https://other.org/y.bmp", want: "https://other.org/y.bmp"},
		{name: "other host kept", base: "http://example.com/", candidate: "http://other.org/", want: "http://other.org/"},
		{name: "whitespace trimmed", base: "http://example.com/", candidate: "  page.html\n", want: "http://example.com/page.html"},
		{name: "unparsable candidate", base: "http://example.com/", candidate: "http://[::1", want: ""},
		{name: "bad percent escape", base: "http://example.com/", candidate: "%zz", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveURL(tc.base, tc.candidate))
		})
	}
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("http://example.com/a", "http://example.com/b"))
	assert.True(t, SameHost("http://EXAMPLE.com/a", "https://example.COM/b"))
	assert.False(t, SameHost("http://example.com/", "http://cdn.example.com/"))
	assert.False(t, SameHost("http://example.com:8080/", "http://example.com/"))
	assert.False(t, SameHost("/relative", "/relative"))
	assert.False(t, SameHost("http://[::1", "http://example.com/"))
}

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{in: "HTTP://Example.COM", want: "http://example.com/"},
		{in: "http://example.com:80/a", want: "http://example.com/a"},
		{in: "https://example.com:443/a", want: "https://example.com/a"},
		{in: "http://example.com:8080/a", want: "http://example.com:8080/a"},
		{in: "http://example.com/a#frag", want: "http://example.com/a"},
		{in: "http://example.com/a?b=2&a=1", want: "http://example.com/a?a=1&b=2"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := NormalizeURL("http://[::1")
	assert.Error(t, err)
}

func TestFollowableLinks(t *testing.T) {
	page := "http://example.com/dir/index.html"
	hrefs := []string{
		"",
		"index.html",
		"other.html",
		"/top.html",
		"other.html",
		"http://elsewhere.org/x.html",
		"//example.com/dir/proto.html",
		"http://[::1",
	}

	got := followableLinks(page, hrefs)
	assert.Equal(t, []string{
		"http://example.com/dir/other.html",
		"http://example.com/top.html",
		"http://example.com/dir/proto.html",
	}, got)
}
