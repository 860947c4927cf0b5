package extractor

import "testing"

func TestForFile_UnsupportedExtension(t *testing.T) {
	if _, err := ForFile("fatura.csv"); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := ForFile("semextensao"); err == nil {
		t.Error("expected error for missing extension")
	}
}

func TestIsSupportedExtension(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"apolice.pdf", true},
		{"apolice.PDF", true},
		{"condicoes.docx", true},
		{"notas.txt", true},
		{"guia.md", true},
		{"pagina.html", true},
		{"dados.csv", false},
		{"imagem.png", false},
	}
	for _, tt := range tests {
		if got := IsSupportedExtension(tt.path); got != tt.want {
			t.Errorf("IsSupportedExtension(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTitle(t *testing.T) {
	if got := Title("/data/pdfs/produto_auto.pdf"); got != "produto_auto" {
		t.Errorf("expected %q, got %q", "produto_auto", got)
	}
	if got := Title("notas.v2.txt"); got != "notas.v2" {
		t.Errorf("expected %q, got %q", "notas.v2", got)
	}
}
