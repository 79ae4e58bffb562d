package rss

import "testing"

func TestHTMLToMarkdown(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"strong", `<p><strong>Bold Text</strong></p>`, "**Bold Text**"},
		{"link", `<a href="https://example.com/1">one</a>`, "[one](https://example.com/1)"},
		{"plain text passes through", "already markdown-ish *text*", "already markdown-ish *text*"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		got, err := HTMLToMarkdown(tc.in)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEntryValue(t *testing.T) {
	entry := Entry{GUID: " guid-1 ", Title: " Title ", Link: "https://example.com/1", Summary: "Summary"}
	cases := []struct {
		field string
		want  string
	}{
		{"", "https://example.com/1"},
		{"LINK", "https://example.com/1"},
		{"guid", "guid-1"},
		{"title", "Title"},
		{"content", "Summary"},
	}
	for _, tc := range cases {
		got, err := entry.Value(tc.field, false)
		if err != nil || got != tc.want {
			t.Fatalf("Value(%q) = %q, %v; want %q", tc.field, got, err, tc.want)
		}
	}

	noGUID := Entry{Link: "https://example.com/2"}
	if got, _ := noGUID.Value(FieldGUID, false); got != "https://example.com/2" {
		t.Fatalf("expected guid to fall back to link, got %q", got)
	}
	if _, err := entry.Value("author", false); err == nil {
		t.Fatal("expected unknown field error")
	}
	if ValidField("author") || !ValidField(" Title ") {
		t.Fatal("unexpected ValidField result")
	}
}
