package conversation

import (
	"sync"
	"testing"
)

func TestNewTranscriptSeedsSystemEntry(t *testing.T) {
	tr := NewTranscript("You are an expert in Computational Fluid Dynamics.")
	got := tr.Snapshot()
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Role != RoleSystem {
		t.Fatalf("Role = %q, want %q", got[0].Role, RoleSystem)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("system entry missing id/timestamp: %+v", got[0])
	}

	if NewTranscript("").Len() != 0 {
		t.Fatalf("empty system prompt should not seed an entry")
	}
}

func TestTranscriptAppendPreservesOrder(t *testing.T) {
	tr := NewTranscript("")
	tr.AppendMessage(RoleUser, "hello")
	tr.Append(
		Entry{Role: RoleAssistant, Content: "hi"},
		Entry{Role: RoleUser, Content: "what is Re?"},
	)

	got := tr.Snapshot()
	want := []string{"hello", "hi", "what is Re?"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("entry[%d] = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestTranscriptSnapshotIsCopy(t *testing.T) {
	tr := NewTranscript("sys")
	snap := tr.Snapshot()
	snap[0].Content = "mutated"
	if tr.Snapshot()[0].Content != "sys" {
		t.Fatalf("snapshot mutation leaked into transcript")
	}
}

func TestTranscriptGrowHook(t *testing.T) {
	tr := NewTranscript("sys")
	var last int
	tr.SetGrowHook(func(n int) { last = n })
	tr.Append(Entry{Role: RoleUser, Content: "a"}, Entry{Role: RoleAssistant, Content: "b"})
	if last != 3 {
		t.Fatalf("hook length = %d, want 3", last)
	}
}

func TestTranscriptConcurrentAppend(t *testing.T) {
	tr := NewTranscript("")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.AppendMessage(RoleUser, "x")
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Fatalf("Len = %d, want 50", tr.Len())
	}
}
