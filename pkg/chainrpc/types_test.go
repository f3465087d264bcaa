package chainrpc

import "testing"

func TestReceiptSuccess(t *testing.T) {
	cases := []struct {
		name string
		r    *Receipt
		want bool
	}{
		{"nil receipt", nil, false},
		{"status success", &Receipt{Status: 1}, true},
		{"status reverted", &Receipt{Status: 0}, false},
	}
	for _, tc := range cases {
		if got := tc.r.Success(); got != tc.want {
			t.Errorf("%s: Success() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTxHandleHex(t *testing.T) {
	var h TxHandle
	h[31] = 1
	if got := h.Hex(); got == "" {
		t.Error("Hex() returned empty string")
	}
}
