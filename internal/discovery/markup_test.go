package discovery

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const labelPanel = `<!doctype html>
<html><body>
<div id="side">
  <div role="listbox" aria-label="Labels">
    <div role="option" data-id="3">
      <span data-icon="label" style="color: rgb(255, 148, 133)"></span>
      <span>New customer</span>
    </div>
    <div role="option">
      <span style="background-color:#64C4FF"></span><span>Pending payment</span><span>(4)</span>
    </div>
    <div role="option"><span>14:32</span></div>
    <div role="option"><span>This row is a long preview of a message and not a label at all</span></div>
  </div>
  <ul aria-label="Chat list">
    <li><span>Mom</span></li>
  </ul>
  <header>
    <button aria-label="Important"><span data-icon="label-outline" fill="#ffd429"></span></button>
  </header>
</div>
</body></html>`

func TestExtractChips(t *testing.T) {
	got, err := ExtractChips(labelPanel)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []RawCandidate{
		{Name: "New customer", Color: "rgb(255, 148, 133)", OriginalID: "3"},
		{Name: "Pending payment (4)", Color: "#64C4FF"},
		{Name: "Important", Color: "#ffd429"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected chips (-want +got):\n%s", diff)
	}
}

func TestExtractChipsWithoutLabelPanel(t *testing.T) {
	got, err := ExtractChips(`<ul aria-label="Chats"><li>Alice</li><li>Bob</li></ul>`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no chips, got %#v", got)
	}
}
