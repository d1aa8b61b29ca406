package domain

import "testing"

func TestEffectiveRetentionDays(t *testing.T) {
	zero := 0
	seven := 7
	cases := []struct {
		name    string
		project Project
		want    int
	}{
		{name: "default", project: Project{}, want: 30},
		{name: "never", project: Project{RetentionDays: &zero}, want: 0},
		{name: "explicit", project: Project{RetentionDays: &seven}, want: 7},
	}
	for _, tc := range cases {
		if got := tc.project.EffectiveRetentionDays(30); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if level, ok := ParseLevel(" warn "); !ok || level != LevelWarn {
		t.Fatalf("expected warn, got %q ok=%v", level, ok)
	}
	if _, ok := ParseLevel("WARN"); ok {
		t.Fatal("levels are case sensitive")
	}
	if _, ok := ParseLevel("trace"); ok {
		t.Fatal("trace is not an accepted level")
	}
}
