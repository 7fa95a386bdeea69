package models

import "testing"

func TestDocumentInputValidate(t *testing.T) {
	in := DocumentInput{Title: "Kubernetes Handbook", Content: "Pods are the smallest unit."}
	if err := in.Validate(); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}

	in = DocumentInput{Title: "   ", Content: "text"}
	if err := in.Validate(); err == nil {
		t.Error("blank title should be rejected")
	}

	in = DocumentInput{Title: "t", Content: ""}
	if err := in.Validate(); err == nil {
		t.Error("empty content should be rejected")
	}
}

func TestAskRequestValidate(t *testing.T) {
	r := AskRequest{Question: "how do I restart a deployment?"}
	if err := r.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	r = AskRequest{Question: " "}
	if err := r.Validate(); err == nil {
		t.Error("blank question should be rejected")
	}
}
