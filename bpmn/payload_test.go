package bpmn

import "testing"

func TestExtractFlag(t *testing.T) {
	payload := `{"flags":{"high_risk":true,"retry_count":3,"region":"eu"}}`

	if v, ok := ExtractFlag(payload, FlagPath("high_risk")); !ok || !v.Truthy() {
		t.Errorf("expected high_risk to be a truthy bool, got %+v ok=%v", v, ok)
	}
	if v, ok := ExtractFlag(payload, FlagPath("retry_count")); !ok || v.I != 3 {
		t.Errorf("expected retry_count=3, got %+v ok=%v", v, ok)
	}
	if v, ok := ExtractFlag(payload, FlagPath("region")); !ok || v.S != "eu" {
		t.Errorf("expected region=eu, got %+v ok=%v", v, ok)
	}
	if _, ok := ExtractFlag(payload, FlagPath("missing")); ok {
		t.Errorf("expected missing flag to report ok=false")
	}
}

func TestMergeOrchFlags(t *testing.T) {
	merged, err := MergeOrchFlags("", map[string]Value{
		"approved": BoolValue(true),
	})
	if err != nil {
		t.Fatalf("MergeOrchFlags returned error: %v", err)
	}
	v, ok := ExtractFlag(merged, FlagPath("approved"))
	if !ok || !v.Truthy() {
		t.Fatalf("expected merged payload to carry approved=true, got %q", merged)
	}

	merged2, err := MergeOrchFlags(merged, map[string]Value{
		"retries": IntValue(2),
	})
	if err != nil {
		t.Fatalf("MergeOrchFlags returned error: %v", err)
	}
	if v, ok := ExtractFlag(merged2, FlagPath("approved")); !ok || !v.Truthy() {
		t.Fatalf("expected prior flag approved to survive a second merge, got %q", merged2)
	}
	if v, ok := ExtractFlag(merged2, FlagPath("retries")); !ok || v.I != 2 {
		t.Fatalf("expected retries=2 in merged payload, got %q", merged2)
	}
}
