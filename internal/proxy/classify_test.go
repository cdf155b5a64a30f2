package proxy

import "testing"

func TestRulesClassify(t *testing.T) {
	rules := Rules{APISegment: "/SWAPI/", MarkdownSuffix: ".md"}
	cases := []struct {
		path string
		kind Kind
		op   string
	}{
		{path: "/docs/SWAPI/clearSWCache", kind: KindAdministrativeCall, op: "clearSWCache"},
		{path: "/SWAPI/updateCacheFiles", kind: KindAdministrativeCall, op: "updateCacheFiles"},
		{path: "/a/SWAPI/b/SWAPI/c", kind: KindAdministrativeCall, op: "b/SWAPI/c"},
		{path: "/notes/SWAPI/readme.md", kind: KindAdministrativeCall, op: "readme.md"},
		{path: "/docs/guide.md", kind: KindMarkdownDocument},
		{path: "/docs/guide.md.bak", kind: KindGenericAsset},
		{path: "/docs/", kind: KindGenericAsset},
		{path: "/docs/app.css", kind: KindGenericAsset},
	}
	for _, tc := range cases {
		route := rules.Classify(tc.path)
		if route.Kind != tc.kind || route.Operation != tc.op {
			t.Fatalf("%s: got %v/%q, want %v/%q", tc.path, route.Kind, route.Operation, tc.kind, tc.op)
		}
		if again := rules.Classify(tc.path); again != route {
			t.Fatalf("%s: classification not stable", tc.path)
		}
	}
}

func TestLastSegment(t *testing.T) {
	cases := map[string]string{
		"/site/index.html": "index.html",
		"/site/":           "",
		"/":                "",
		"/lazierDocs.js":   "lazierDocs.js",
	}
	for in, want := range cases {
		if got := lastSegment(in); got != want {
			t.Fatalf("lastSegment(%q)=%q want %q", in, got, want)
		}
	}
}

func TestParseOperation(t *testing.T) {
	if op, ok := ParseOperation("clearSWCache"); !ok || op != OpClearCache {
		t.Fatalf("clearSWCache not recognised")
	}
	if op, ok := ParseOperation("updateCacheFiles"); !ok || op != OpUpdateManifest {
		t.Fatalf("updateCacheFiles not recognised")
	}
	if _, ok := ParseOperation("dropEverything"); ok {
		t.Fatalf("unknown operation should not parse")
	}
	if OpUpdateManifest.String() != "updateCacheFiles" {
		t.Fatalf("unexpected operation name %s", OpUpdateManifest)
	}
}
