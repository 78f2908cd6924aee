package conv

import "testing"

func TestUtoa(t *testing.T) {
	var buf [20]byte
	for n, want := range map[uint64]string{
		0:         "0",
		7:         "7",
		72000000:  "72000000",
		1<<64 - 1: "18446744073709551615",
	} {
		if got := string(Utoa(buf[:], n)); got != want {
			t.Fatalf("Utoa(%d) = %q", n, got)
		}
	}
	var short [2]byte
	if got := string(Utoa(short[:], 1234)); got != "34" {
		t.Fatalf("short buffer: %q", got)
	}
}

func TestU32Hex(t *testing.T) {
	var buf [8]byte
	if got := string(U32Hex(buf[:], 0x44444444)); got != "44444444" {
		t.Fatal(got)
	}
	if got := string(U32Hex(buf[:], 0x2A)); got != "0000002A" {
		t.Fatal(got)
	}
	if len(U32Hex(buf[:4], 1)) != 0 {
		t.Fatal("short buffer not rejected")
	}
}
