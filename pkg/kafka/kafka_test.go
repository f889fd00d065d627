package kafka

import "testing"

type uploaded struct {
	GenomeID int64  `json:"genome_id"`
	FileName string `json:"file_name"`
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[uploaded]([]byte(`{"genome_id":7,"file_name":"ecoli.fa"}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got.GenomeID != 7 || got.FileName != "ecoli.fa" {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	if _, err := DecodeJSON[uploaded]([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
