package postproc

import (
	"reflect"
	"strings"
	"testing"
)

func TestNextStepsSuppressedForSmallTalk(t *testing.T) {
	p := testProcessor()
	if got := p.NextSteps("Hello! How can I help?", "hi"); got != nil {
		t.Fatalf("greeting exchange should yield no suggestions, got %v", got)
	}
	if got := p.NextSteps("You're welcome!", "thanks"); got != nil {
		t.Fatalf("thanks exchange should yield no suggestions, got %v", got)
	}
}

func TestNextStepsNotSuppressedForShortUserWithRealReply(t *testing.T) {
	p := testProcessor()
	reply := strings.Repeat("Here is a thorough explanation of the topic. ", 5)
	// a greeting-length user message alone is not enough to suppress
	if got := p.NextSteps(reply, "hi"); len(got) == 0 {
		t.Fatalf("substantial reply should still get suggestions")
	}
}

func TestNextStepsEmptyReply(t *testing.T) {
	p := testProcessor()
	if got := p.NextSteps("   ", "tell me something"); got != nil {
		t.Fatalf("empty reply must yield nothing, got %v", got)
	}
}

func TestParseNextStepsExplicitMarker(t *testing.T) {
	p := testProcessor()
	text := "Done.\n\nNext steps:\n- Review the config\n- Restart the service\n- Check the logs"
	got := p.ParseNextSteps(text)
	want := []string{"Review the config", "Restart the service", "Check the logs"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseNextStepsNeedsTwoCandidates(t *testing.T) {
	p := testProcessor()
	if got := p.ParseNextSteps("Next steps:\n- Only one"); got != nil {
		t.Fatalf("single candidate should parse to nothing, got %v", got)
	}
}

func TestParseNextStepsSkipsLongLines(t *testing.T) {
	p := testProcessor()
	long := strings.Repeat("x", 120)
	text := "Try:\n- " + long + "\n- short one\n- another short"
	got := p.ParseNextSteps(text)
	want := []string{"short one", "another short"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseNextStepsCapsAtFour(t *testing.T) {
	p := testProcessor()
	text := "You can:\n- a1\n- a2\n- a3\n- a4\n- a5\n- a6"
	got := p.ParseNextSteps(text)
	if len(got) != 4 {
		t.Fatalf("expected cap of 4 suggestions, got %v", got)
	}
}

func TestNextStepsCodeCategory(t *testing.T) {
	p := testProcessor()
	reply := "Here you go:\n```go\nfunc main() {}\n```\nThat should work across all the environments you mentioned."
	got := p.NextSteps(reply, "write me some code")
	if !reflect.DeepEqual(got, codeSuggestions) {
		t.Fatalf("expected code suggestions, got %v", got)
	}
}

func TestNextStepsTroubleshootingCategory(t *testing.T) {
	p := testProcessor()
	reply := "That looks like a dependency problem on your machine. Reinstall everything in a clean checkout and watch what the installer prints for each package."
	got := p.NextSteps(reply, "please help me debug why my install keeps failing with a weird message")
	if !reflect.DeepEqual(got, troubleshootingSuggestions) {
		t.Fatalf("expected troubleshooting suggestions, got %v", got)
	}
}

func TestNextStepsParsedWinsOverCategory(t *testing.T) {
	p := testProcessor()
	reply := "Fixed the error in your function.\n\nNext steps:\n- Deploy it\n- Watch the metrics"
	got := p.NextSteps(reply, "fix my code")
	want := []string{"Deploy it", "Watch the metrics"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parsed suggestions should win, got %v", got)
	}
}

func TestNextStepsDefaultCategory(t *testing.T) {
	p := testProcessor()
	reply := "The capital of France is Paris. It has been the political center of the country since the medieval period and remains its most populous city."
	got := p.NextSteps(reply, "what is the capital of France and why")
	if !reflect.DeepEqual(got, defaultSuggestions) {
		t.Fatalf("expected default suggestions, got %v", got)
	}
}
