package bpmn

import "testing"

func TestWaitStateDescribe(t *testing.T) {
	cases := []struct {
		name string
		w    WaitState
		want string
	}{
		{"running", Running(), "Running"},
		{"timer", TimerWait(1700000000000), "Timer(fire_at_ms=1700000000000)"},
		{"msg", MsgWait("OrderApproved", "order-42"), "Msg(msg_name=OrderApproved, corr_key=order-42)"},
		{"job", JobWait("iid:task:3:0"), "Job(job_key=iid:task:3:0)"},
		{"join", JoinWait(5), "Join(join_id=5)"},
		{"incident", IncidentWait("inc-1"), "Incident(incident_id=inc-1)"},
		{"race", RaceWait(2, ""), "Race(race_id=2)"},
	}
	for _, c := range cases {
		if got := c.w.Describe(); got != c.want {
			t.Errorf("%s: Describe() = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestFlagIDStable(t *testing.T) {
	a := FlagID("urgent")
	b := FlagID("urgent")
	if a != b {
		t.Fatalf("FlagID not stable for the same name: %d != %d", a, b)
	}
	if FlagID("urgent") == FlagID("not_urgent") {
		t.Fatalf("FlagID collided for distinct names")
	}
	if a < 0 {
		t.Fatalf("FlagID must be non-negative, got %d", a)
	}
}

func TestValueTruthy(t *testing.T) {
	if BoolValue(false).Truthy() {
		t.Error("BoolValue(false) should not be truthy")
	}
	if !BoolValue(true).Truthy() {
		t.Error("BoolValue(true) should be truthy")
	}
	if IntValue(0).Truthy() {
		t.Error("IntValue(0) should not be truthy")
	}
	if !IntValue(1).Truthy() {
		t.Error("IntValue(1) should be truthy")
	}
	if StringValue("").Truthy() {
		t.Error("StringValue(\"\") should not be truthy")
	}
	if !StringValue("x").Truthy() {
		t.Error("StringValue(\"x\") should be truthy")
	}
}
