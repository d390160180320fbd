package telephony

import (
	"strings"
	"testing"
)

func TestRenderDialClient(t *testing.T) {
	xml, err := RenderDial(DialTarget{CallerID: "+14155550100", Client: "user-1", Record: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{`<Dial callerId="+14155550100"`, `record="record-from-answer"`, "<Client>user-1</Client>"} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
	if strings.Contains(xml, "<Number>") {
		t.Fatalf("unexpected number element: %s", xml)
	}
}

func TestRenderDialRequiresOneTarget(t *testing.T) {
	if _, err := RenderDial(DialTarget{CallerID: "+1"}); err == nil {
		t.Fatalf("expected error without target")
	}
	if _, err := RenderDial(DialTarget{Number: "+1", Client: "u"}); err == nil {
		t.Fatalf("expected error with two targets")
	}
}

func TestRenderSayVerificationCode(t *testing.T) {
	xml, err := RenderSay(VerificationMessage("123456"), 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(xml, `<Say loop="2">Your verification code is 1, 2, 3, 4, 5, 6.</Say>`) {
		t.Fatalf("unexpected xml: %s", xml)
	}
	if !strings.Contains(xml, "<Hangup></Hangup>") {
		t.Fatalf("expected hangup after say: %s", xml)
	}
}
