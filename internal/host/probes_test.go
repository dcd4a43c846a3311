package host

import (
	"strings"
	"testing"
)

func TestJSStringEscapes(t *testing.T) {
	got := jsString(`a "quoted" </script> name`)
	if !strings.HasPrefix(got, `"`) || !strings.HasSuffix(got, `"`) {
		t.Fatalf("expected a quoted literal, got %s", got)
	}
	if strings.Contains(got, `</script>`) {
		t.Fatalf("expected html-unsafe characters to be escaped, got %s", got)
	}
}

func TestModuleSampleJSDefaultsPerSide(t *testing.T) {
	if !strings.Contains(moduleSampleJS(0), "const perSide = 250;") {
		t.Fatal("expected default per-side sample of 250")
	}
	if !strings.Contains(moduleSampleJS(10), "const perSide = 10;") {
		t.Fatal("expected explicit per-side sample")
	}
}

func TestClickLabelJSEmbedsName(t *testing.T) {
	script := clickLabelJS("VIP")
	if !strings.Contains(script, `"VIP".trim()`) {
		t.Fatalf("label name not embedded: %s", script)
	}
}

func TestComputedColorJSRejectsTokensThePageIgnores(t *testing.T) {
	script := computedColorJS("no-such-token")
	assign := strings.Index(script, `el.style.color = "no-such-token";`)
	guard := strings.Index(script, `if (el.style.color === '') return '';`)
	if assign < 0 || guard < assign {
		t.Fatalf("expected an empty result when the token is not accepted: %s", script)
	}
	if guard > strings.Index(script, "getComputedStyle") {
		t.Fatal("the guard must run before the inherited color is read")
	}
}
