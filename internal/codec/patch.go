package codec

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// MergePatchContentType is sent with every patch request
const MergePatchContentType = "application/merge-patch+json"

// PatchRequest is a partial document merged into a stored object.
// Keys present in the document replace stored keys; absent keys are untouched.
type PatchRequest struct {
	Document map[string]interface{}
}

// SpecPatch builds a patch touching only the given spec keys
func SpecPatch(spec map[string]interface{}) PatchRequest {
	return PatchRequest{Document: map[string]interface{}{"spec": spec}}
}

// Encode renders the patch body
func (p PatchRequest) Encode() ([]byte, error) {
	return EncodeMergePatch(p.Document)
}

// EncodeMergePatch renders a merge patch body. An empty document is rejected.
func EncodeMergePatch(doc map[string]interface{}) ([]byte, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("merge patch document is empty")
	}
	data, err := utiljson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merge patch: %w", err)
	}
	return data, nil
}

// ApplyMergePatch applies an RFC 7386 merge patch to original and returns the result
func ApplyMergePatch(original, patch []byte) ([]byte, error) {
	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to apply merge patch: %w", err)
	}
	return merged, nil
}

// Preview returns the envelope that results from applying p to e locally.
// The server may still reject or alter the result.
func (e Envelope) Preview(p PatchRequest) (Envelope, error) {
	original, err := e.MarshalJSON()
	if err != nil {
		return Envelope{}, err
	}
	patch, err := p.Encode()
	if err != nil {
		return Envelope{}, err
	}
	merged, err := ApplyMergePatch(original, patch)
	if err != nil {
		return Envelope{}, err
	}
	return Decode(merged)
}
