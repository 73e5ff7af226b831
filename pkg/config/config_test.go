package config

import "testing"

func TestSplitIds(t *testing.T) {
	ids := splitIds(" a, b ,,c ")
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("splitIds wrong: %v", ids)
	}
	if splitIds("") != nil {
		t.Fatalf("empty input must yield no ids")
	}
}

func TestParseColor(t *testing.T) {
	if got := parseColor("#00A2FF", 0); got != 0x00A2FF {
		t.Fatalf("hash-prefixed color %x", got)
	}
	if got := parseColor("ff0000", 0); got != 0xFF0000 {
		t.Fatalf("bare color %x", got)
	}
	if got := parseColor("not-a-color", 0x123456); got != 0x123456 {
		t.Fatalf("invalid color must fall back, got %x", got)
	}
	if got := parseColor("", 0x123456); got != 0x123456 {
		t.Fatalf("empty color must fall back, got %x", got)
	}
}

func TestBotUserIdLearning(t *testing.T) {
	c := &Config{}
	c.LearnBotUserId("gateway-id")
	if got := c.BotUserId(); got != "gateway-id" {
		t.Fatalf("handshake id not learned, got %q", got)
	}

	c.LearnBotUserId("second-id")
	if got := c.BotUserId(); got != "gateway-id" {
		t.Fatalf("first learned id must stick, got %q", got)
	}

	pinned := &Config{botUserId: "env-id"}
	pinned.LearnBotUserId("gateway-id")
	if got := pinned.BotUserId(); got != "env-id" {
		t.Fatalf("env id must win over handshake, got %q", got)
	}
}

func TestIsStaff(t *testing.T) {
	c := &Config{StaffRoleIds: []string{"r1", "r2"}}

	if !c.IsStaff([]string{"x", "r2"}) {
		t.Fatalf("member of a staff role must pass")
	}
	if c.IsStaff([]string{"x", "y"}) {
		t.Fatalf("non-member must fail")
	}
	if c.IsStaff(nil) {
		t.Fatalf("no roles must fail")
	}
}
