package core

import (
	"encoding/json"
	"testing"
)

func TestComputeRequestHash_Deterministic(t *testing.T) {
	body := json.RawMessage(`{"name":"Sales EMEA","template_group_id":"tpl-1"}`)
	h1 := ComputeRequestHash(body, "POST", "/v1/provisionings")
	h2 := ComputeRequestHash(body, "POST", "/v1/provisionings")
	if h1 != h2 {
		t.Fatalf("same input produced different hashes: %s vs %s", h1, h2)
	}
}

func TestComputeRequestHash_KeyOrderIrrelevant(t *testing.T) {
	body1 := json.RawMessage(`{"template_group_id":"tpl-1","name":"Sales EMEA"}`)
	body2 := json.RawMessage(`{"name":"Sales EMEA","template_group_id":"tpl-1"}`)
	h1 := ComputeRequestHash(body1, "POST", "/v1/provisionings")
	h2 := ComputeRequestHash(body2, "POST", "/v1/provisionings")
	if h1 != h2 {
		t.Fatalf("different key order produced different hashes: %s vs %s", h1, h2)
	}
}

func TestComputeRequestHash_DifferentBody(t *testing.T) {
	body1 := json.RawMessage(`{"name":"Sales EMEA"}`)
	body2 := json.RawMessage(`{"name":"Sales APAC"}`)
	h1 := ComputeRequestHash(body1, "POST", "/v1/provisionings")
	h2 := ComputeRequestHash(body2, "POST", "/v1/provisionings")
	if h1 == h2 {
		t.Fatal("different bodies produced same hash")
	}
}

func TestComputeRequestHash_DifferentMethod(t *testing.T) {
	body := json.RawMessage(`{"name":"Sales EMEA"}`)
	h1 := ComputeRequestHash(body, "POST", "/v1/provisionings")
	h2 := ComputeRequestHash(body, "DELETE", "/v1/provisionings")
	if h1 == h2 {
		t.Fatal("different methods produced same hash")
	}
}
