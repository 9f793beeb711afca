package task

import "testing"

func TestUtilizationZeroPeriod(t *testing.T) {
	t.Parallel()

	d := Descriptor{PeriodUs: 0, WCETUs: 10} //nolint:exhaustruct

	if got := d.Utilization(); got != 0 {
		t.Fatalf("Utilization() = %v, want 0", got)
	}

	if got := d.FrequencyHz(); got != 0 {
		t.Fatalf("FrequencyHz() = %v, want 0", got)
	}
}

func TestUtilizationRatio(t *testing.T) {
	t.Parallel()

	d := Descriptor{PeriodUs: 100, WCETUs: 25} //nolint:exhaustruct

	if got := d.Utilization(); got != 0.25 {
		t.Fatalf("Utilization() = %v, want 0.25", got)
	}
}

func TestFrequencyHz(t *testing.T) {
	t.Parallel()

	d := Descriptor{PeriodUs: 1000} //nolint:exhaustruct

	if got := d.FrequencyHz(); got != 1000 {
		t.Fatalf("FrequencyHz() = %v, want 1000", got)
	}
}

func TestSetNameTruncatesAndPads(t *testing.T) {
	t.Parallel()

	var d Descriptor

	d.SetName("abc")
	if got := d.NameString(); got != "abc" {
		t.Fatalf("NameString() = %q, want %q", got, "abc")
	}

	d.SetName("way-too-long-name")
	if got := d.NameString(); got != "way-too-" {
		t.Fatalf("NameString() = %q, want %q", got, "way-too-")
	}
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	if !(Critical < High && High < Normal && Normal < Low && Low < Idle) {
		t.Fatalf("priority rungs are not in the expected order")
	}
}

func TestPriorityString(t *testing.T) {
	t.Parallel()

	cases := map[Priority]string{
		Critical:     "critical",
		High:         "high",
		Normal:       "normal",
		Low:          "low",
		Idle:         "idle",
		Priority(42): "priority(42)",
	}

	for priority, want := range cases {
		if got := priority.String(); got != want {
			t.Fatalf("Priority(%d).String() = %q, want %q", priority, got, want)
		}
	}
}
