package masking

import "testing"

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"abc":              "****",
		"pay_LkJ8d9Qw2x":   "pay_****Qw2x",
		"deadbeefcafe1234": "****1234",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskContact(t *testing.T) {
	if got := MaskEmail("ravi.parent@example.com"); got != "r****@example.com" {
		t.Fatalf("MaskEmail = %q", got)
	}
	if got := MaskPhone("+91 98765-43210"); got != "****3210" {
		t.Fatalf("MaskPhone = %q", got)
	}
	if got := MaskPhone("12"); got != "****" {
		t.Fatalf("short phone = %q", got)
	}
}

func TestMetadataMasksByField(t *testing.T) {
	got := Metadata(map[string]any{
		"Signature":  "sig_0123456789abcdef",
		"invoice_id": "1790000000000000001",
		"customer":   map[string]any{"email": "a@b.in", "name": "Asha"},
		"amount":     600,
	})
	if got["Signature"] != "sig_****cdef" {
		t.Fatalf("signature = %v", got["Signature"])
	}
	if got["invoice_id"] != "1790000000000000001" {
		t.Fatalf("non-sensitive string changed: %v", got["invoice_id"])
	}
	customer := got["customer"].(map[string]any)
	if customer["email"] != "a****@b.in" || customer["name"] != "Asha" {
		t.Fatalf("nested customer = %v", customer)
	}
	if got["amount"] != 600 {
		t.Fatalf("non-string values must pass through")
	}
}
