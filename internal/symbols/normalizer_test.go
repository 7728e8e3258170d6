package symbols

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BTC", "BTC-EUR"},
		{"btc", "BTC-EUR"},
		{" eth ", "ETH-EUR"},
		{"BTC-EUR", "BTC-EUR"},
		{"BTC/EUR", "BTC-EUR"},
		{"btc_usd", "BTC-USD"},
		{"BTC-", "BTC-EUR"},
		{"", ""},
	}

	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, s := range []string{"BTC", "btc/eur", "ETH_USD", "sol-usdc"} {
		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", s, once, twice)
		}
	}
}

func TestBase(t *testing.T) {
	if got := Base("btc/eur"); got != "BTC" {
		t.Errorf("Base = %q, want BTC", got)
	}
	if got := Base("ETH"); got != "ETH" {
		t.Errorf("Base = %q, want ETH", got)
	}
}
