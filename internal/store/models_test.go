package store

import "testing"

func TestContactCloneIsDeep(t *testing.T) {
	phone := "+15550000"
	original := Contact{ID: "c1", Phone: &phone, Tags: []string{"a"}}

	clone := original.Clone()
	clone.Tags[0] = "b"
	*clone.Phone = "+19999999"

	if original.Tags[0] != "a" {
		t.Errorf("clone shares tag storage with original")
	}
	if original.PhoneValue() != "+15550000" {
		t.Errorf("clone shares phone storage with original")
	}
}

func TestContactCloneNilTags(t *testing.T) {
	clone := Contact{ID: "c1"}.Clone()
	if clone.Tags == nil {
		t.Fatal("expected an empty, non-nil tag list")
	}
	if clone.Phone != nil {
		t.Fatal("expected nil phone to stay nil")
	}
}

func TestLabelNameKey(t *testing.T) {
	if got := (Label{Name: "  VIP Clients "}).NameKey(); got != "vip clients" {
		t.Errorf("unexpected name key %q", got)
	}
}

func TestDecodeTagsNeverReturnsNil(t *testing.T) {
	for _, raw := range []string{"", "null", "[]"} {
		tags, err := decodeTags(raw)
		if err != nil {
			t.Fatalf("decodeTags(%q) failed: %v", raw, err)
		}
		if tags == nil || len(tags) != 0 {
			t.Fatalf("decodeTags(%q) = %#v, want an empty non-nil list", raw, tags)
		}
	}

	tags, err := decodeTags(`["lbl_vip","lbl_new-lead"]`)
	if err != nil || len(tags) != 2 || tags[0] != "lbl_vip" {
		t.Fatalf("unexpected tags %#v err=%v", tags, err)
	}
	if _, err := decodeTags("{"); err == nil {
		t.Fatal("expected an error for malformed tags")
	}
}
