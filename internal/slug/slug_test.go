package slug

import "testing"

func TestMake(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"ABC Ltda.", "abc-ltda"},
		{"Condomínios e Loteamentos", "condominios-e-loteamentos"},
		{"Restauração & Conservação de Rodovias", "restauracao-conservacao-de-rodovias"},
		{"  --Obra 2024!!  ", "obra-2024"},
		{"já_existe/arquivo.PNG", "ja-existe-arquivo-png"},
		{"", ""},
		{"!!!", ""},
	}
	for _, c := range cases {
		if got := Make(c.in); got != c.want {
			t.Fatalf("Make(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}

func TestMake_OnlySafeCharacters(t *testing.T) {
	t.Parallel()

	got := Make("Ação Ñandú — Ünïcödé 42 / Ltda.")
	for _, r := range got {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !ok {
			t.Fatalf("unexpected rune %q in %q", r, got)
		}
	}
	if got == "" || got[0] == '-' || got[len(got)-1] == '-' {
		t.Fatalf("bad edges: %q", got)
	}
}

func TestBase_Fallback(t *testing.T) {
	t.Parallel()

	if got := Base("???", "projeto"); got != "projeto" {
		t.Fatalf("Base fallback=%q", got)
	}
	if got := Base("Ponte Rio", "projeto"); got != "ponte-rio" {
		t.Fatalf("Base=%q", got)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	if !Valid("abc-ltda") {
		t.Fatalf("abc-ltda should be valid")
	}
	for _, s := range []string{"", "ABC", "a--b", "-a", "a b"} {
		if Valid(s) {
			t.Fatalf("%q should be invalid", s)
		}
	}
}
