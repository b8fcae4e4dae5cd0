package platform

import "testing"

func TestOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://ui.example.com/shop?x=1", want: "https://ui.example.com"},
		{in: "http://127.0.0.1:3030/callback", want: "http://127.0.0.1:3030"},
		{in: "/relative", wantErr: true},
		{in: "::", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Origin(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("Origin(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Origin(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Origin(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
