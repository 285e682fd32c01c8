package embedding

import (
	"context"
	"testing"
)

func TestDeterministicEmbedder_Stable(t *testing.T) {
	e := NewDeterministic(16, true, 7)
	v1, err := e.EmbedBatch(context.Background(), []string{"hello world"}, false)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	v2, err := e.EmbedBatch(context.Background(), []string{"hello world"}, false)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(v1[0]) != 16 || len(v2[0]) != 16 {
		t.Fatalf("expected dim 16, got %d and %d", len(v1[0]), len(v2[0]))
	}
	for i := range v1[0] {
		if v1[0][i] != v2[0][i] {
			t.Fatalf("embedding not deterministic at index %d: %v vs %v", i, v1[0], v2[0])
		}
	}
}

func TestDeterministicEmbedder_QueryVsDocumentDiffer(t *testing.T) {
	e := NewDeterministic(16, false, 1)
	doc, _ := e.EmbedBatch(context.Background(), []string{"fact"}, false)
	qry, _ := e.EmbedBatch(context.Background(), []string{"fact"}, true)
	equal := true
	for i := range doc[0] {
		if doc[0][i] != qry[0][i] {
			equal = false
			break
		}
	}
	if equal {
		t.Fatalf("expected query-side embedding to differ from document-side embedding")
	}
}
