package topic_test

import (
	"errors"
	"testing"

	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
	"github.com/next-trace/scg-misp-bridge/topic"
)

func TestResolve_WithIdentity(t *testing.T) {
	r := topic.NewResolver("sample")

	got, err := r.Resolve(topic.Request, "new_event")
	if err != nil {
		t.Fatalf("resolve request: %v", err)
	}

	if got != "/opendxl-misp/service/misp-api/sample/new_event" {
		t.Fatalf("request topic=%s", got)
	}

	got, err = r.Resolve(topic.Event, "misp_json_event")
	if err != nil {
		t.Fatalf("resolve event: %v", err)
	}

	if got != "/opendxl-misp/event/zeromq-notifications/sample/misp_json_event" {
		t.Fatalf("event topic=%s", got)
	}
}

func TestResolve_WithoutIdentity_OmitsSegment(t *testing.T) {
	r := topic.NewResolver("")

	got, err := r.Resolve(topic.Request, "search")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// the identity segment must be absent, not empty
	if got != "/opendxl-misp/service/misp-api/search" {
		t.Fatalf("topic=%s", got)
	}
}

func TestResolve_RejectsDelimiterInjection(t *testing.T) {
	r := topic.NewResolver("sample")

	for _, name := range []string{"", "a/b", "/lead", "trail/"} {
		if _, err := r.Resolve(topic.Request, name); !errors.Is(err, berr.ErrInvalidOperationName) {
			t.Fatalf("name %q: want ErrInvalidOperationName, got %v", name, err)
		}
	}
}

func TestResolve_DeterministicAndInjective(t *testing.T) {
	r := topic.NewResolver("id1")

	a1, _ := r.Resolve(topic.Request, "new_event")
	a2, _ := r.Resolve(topic.Request, "new_event")

	if a1 != a2 {
		t.Fatalf("resolve not deterministic: %s vs %s", a1, a2)
	}

	names := []string{"new_event", "search", "tag", "sighting"}
	seen := make(map[string]string, len(names)*2)

	for _, n := range names {
		for _, k := range []topic.Kind{topic.Request, topic.Event} {
			resolved, err := r.Resolve(k, n)
			if err != nil {
				t.Fatalf("resolve %s: %v", n, err)
			}

			if prev, dup := seen[resolved]; dup {
				t.Fatalf("collision: %s and %s both resolve to %s", prev, n, resolved)
			}

			seen[resolved] = n
		}
	}
}

func TestLeaf(t *testing.T) {
	if got := topic.Leaf("/opendxl-misp/service/misp-api/sample/new_event"); got != "new_event" {
		t.Fatalf("leaf=%s", got)
	}

	if got := topic.Leaf("bare"); got != "bare" {
		t.Fatalf("leaf=%s", got)
	}
}
