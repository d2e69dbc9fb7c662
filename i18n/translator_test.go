package i18n

import "testing"

func TestTranslator_DefaultAndJapanese(t *testing.T) {
	// default is en
	if msg := T("required"); msg == "" || msg == "required" {
		t.Fatalf("expected a human message, got %q", msg)
	}

	SetLanguage("ja")
	if msg := T("required"); msg == english["required"] {
		t.Fatalf("expected japanese message, got %q", msg)
	}

	// reset to en
	SetLanguage("en")
}

func TestFor_MatchesRegionalTags(t *testing.T) {
	if got := For("ja-JP").Message("enum"); got != japanese["enum"] {
		t.Fatalf("ja-JP: got %q", got)
	}
	if got := For("en-GB").Message("enum"); got != english["enum"] {
		t.Fatalf("en-GB: got %q", got)
	}
	if got := For("not a tag").Message("enum"); got != english["enum"] {
		t.Fatalf("fallback: got %q", got)
	}
}

func TestTranslator_FallsBackToEnglishThenGeneric(t *testing.T) {
	ja := For("ja")
	if got := ja.Message("minContains"); got != english["minContains"] {
		t.Fatalf("missing ja entry should fall back to en, got %q", got)
	}
	if got := ja.Message("x-custom"); got != `must pass "x-custom" keyword validation` {
		t.Fatalf("got %q", got)
	}
}
