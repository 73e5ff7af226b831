package ticket

import (
	"strings"
	"testing"
)

func TestMakeCaseId(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		caseId := MakeCaseId()
		if !strings.HasPrefix(caseId, "#T-") {
			t.Fatalf("caseId %v missing prefix", caseId)
		}
		body := strings.TrimPrefix(caseId, "#T-")
		if len(body) != 8 {
			t.Fatalf("caseId %v body length %v, want 8", caseId, len(body))
		}
		for _, r := range body {
			if !strings.ContainsRune(caseAlphabet, r) {
				t.Fatalf("caseId %v contains %q outside alphabet", caseId, r)
			}
		}
		if seen[caseId] {
			t.Fatalf("caseId %v repeated within 100 draws", caseId)
		}
		seen[caseId] = true
	}
}

func TestSanitizeChannelName(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"John Doe", "john-doe"},
		{"  Max   Mustermann  ", "max-mustermann"},
		{"Ümläut Nämé", "-ml-ut-n-m-"},
		{"UPPER", "upper"},
		{"already-fine-123", "already-fine-123"},
		{"a--b----c", "a-b-c"},
		{"", "ticket"},
		{"!!!", "-"},
		{strings.Repeat("x", 150), strings.Repeat("x", 100)},
	}
	for _, c := range cases {
		if got := SanitizeChannelName(c.raw); got != c.want {
			t.Fatalf("SanitizeChannelName(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestRecordIsTicket(t *testing.T) {
	if (&Record{}).IsTicket() {
		t.Fatalf("empty record must not be a ticket")
	}
	if !(&Record{CaseId: "#T-ABCDEFGH"}).IsTicket() {
		t.Fatalf("record with case id must be a ticket")
	}
}

func TestButtonsDerivation(t *testing.T) {
	open := Buttons(false, false)
	if len(open) != 3 {
		t.Fatalf("open ticket wants 3 buttons, got %v", len(open))
	}
	if open[0].CustomId != ButtonClaim || open[0].Disabled {
		t.Fatalf("open ticket claim button wrong: %+v", open[0])
	}

	claimed := Buttons(true, false)
	if !claimed[0].Disabled || claimed[0].Label != "Claimed" {
		t.Fatalf("claimed ticket claim button wrong: %+v", claimed[0])
	}
	if claimed[2].CustomId != ButtonClose || claimed[2].Disabled {
		t.Fatalf("claimed ticket close button wrong: %+v", claimed[2])
	}

	closed := Buttons(true, true)
	if len(closed) != 1 {
		t.Fatalf("closed ticket wants only the close button, got %v", len(closed))
	}
	if closed[0].CustomId != ButtonClose || !closed[0].Disabled {
		t.Fatalf("closed ticket close button wrong: %+v", closed[0])
	}
}

func TestNormalizeAnswers(t *testing.T) {
	out := NormalizeAnswers([]QA{
		{Question: "Q1", Answer: "A1"},
		{Question: "Q2", Answer: "   "},
		{Question: "", Answer: "A3"},
	})
	if len(out) != 2 {
		t.Fatalf("want 2 answers, got %v", len(out))
	}
	if out[0].Question != "Q1" || out[0].Answer != "A1" {
		t.Fatalf("first pair mangled: %+v", out[0])
	}
	if out[1].Question != "Question 3" {
		t.Fatalf("blank question not numbered: %+v", out[1])
	}
}
