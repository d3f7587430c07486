package codec

import (
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// ErrDecode is matched by every *DecodeError through errors.Is
var ErrDecode = errors.New("decode error")

// DecodeError is returned for malformed or structurally incomplete bodies
type DecodeError struct {
	Reason string
	Err    error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to decode response: %s", e.Reason)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for DecodeError
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Envelope is a decoded API object. It is immutable: every accessor returns a copy.
type Envelope struct {
	obj *unstructured.Unstructured
}

// NewEnvelope builds an envelope from any JSON-encodable object
func NewEnvelope(object map[string]interface{}) (Envelope, error) {
	data, err := utiljson.Marshal(object)
	if err != nil {
		return Envelope{}, &DecodeError{Reason: "object is not JSON-encodable", Err: err}
	}
	return Decode(data)
}

func requireName(u *unstructured.Unstructured) error {
	name, found, err := unstructured.NestedString(u.Object, "metadata", "name")
	if err != nil {
		return &DecodeError{Reason: "metadata.name is not a string", Err: err}
	}
	if !found || name == "" {
		return &DecodeError{Reason: "metadata.name is missing"}
	}
	return nil
}

// Decode parses a single object body
func Decode(body []byte) (Envelope, error) {
	var object map[string]interface{}
	if err := utiljson.Unmarshal(body, &object); err != nil {
		return Envelope{}, &DecodeError{Reason: "malformed JSON", Err: err}
	}
	if object == nil {
		return Envelope{}, &DecodeError{Reason: "body is not a JSON object"}
	}
	u := &unstructured.Unstructured{Object: object}
	if err := requireName(u); err != nil {
		return Envelope{}, err
	}
	return Envelope{obj: u}, nil
}

// DecodeList parses a list body. A missing or null items key yields an empty slice.
func DecodeList(body []byte) ([]Envelope, error) {
	var object map[string]interface{}
	if err := utiljson.Unmarshal(body, &object); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}
	if object == nil {
		return nil, &DecodeError{Reason: "body is not a JSON object"}
	}

	raw, ok := object["items"]
	if !ok || raw == nil {
		return []Envelope{}, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, &DecodeError{Reason: fmt.Sprintf("items is %T, not a list", raw)}
	}

	out := make([]Envelope, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, &DecodeError{Reason: fmt.Sprintf("items[%d] is %T, not an object", i, item)}
		}
		u := &unstructured.Unstructured{Object: m}
		if err := requireName(u); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		out = append(out, Envelope{obj: u})
	}
	return out, nil
}

// IsZero reports whether the envelope holds no object
func (e Envelope) IsZero() bool {
	return e.obj == nil
}

// Name returns metadata.name
func (e Envelope) Name() string {
	if e.obj == nil {
		return ""
	}
	return e.obj.GetName()
}

// Namespace returns metadata.namespace
func (e Envelope) Namespace() string {
	if e.obj == nil {
		return ""
	}
	return e.obj.GetNamespace()
}

// Kind returns the object kind, which list items often omit
func (e Envelope) Kind() string {
	if e.obj == nil {
		return ""
	}
	return e.obj.GetKind()
}

// CreationTimestamp returns metadata.creationTimestamp, or the zero time
func (e Envelope) CreationTimestamp() time.Time {
	if e.obj == nil {
		return time.Time{}
	}
	return e.obj.GetCreationTimestamp().Time
}

// Labels returns a copy of metadata.labels
func (e Envelope) Labels() map[string]string {
	if e.obj == nil {
		return nil
	}
	return e.obj.GetLabels()
}

// Annotations returns a copy of metadata.annotations
func (e Envelope) Annotations() map[string]string {
	if e.obj == nil {
		return nil
	}
	return e.obj.GetAnnotations()
}

// Spec returns a copy of the spec mapping, empty when absent
func (e Envelope) Spec() map[string]interface{} {
	return e.NestedMap("spec")
}

// Status returns a copy of the status mapping, empty when absent
func (e Envelope) Status() map[string]interface{} {
	return e.NestedMap("status")
}

// NestedMap returns a copy of the mapping at fields, empty when absent or of another type
func (e Envelope) NestedMap(fields ...string) map[string]interface{} {
	if e.obj == nil {
		return map[string]interface{}{}
	}
	m, found, err := unstructured.NestedMap(e.obj.Object, fields...)
	if !found || err != nil {
		return map[string]interface{}{}
	}
	return m
}

// NestedString returns the string at fields
func (e Envelope) NestedString(fields ...string) (string, bool) {
	if e.obj == nil {
		return "", false
	}
	s, found, err := unstructured.NestedString(e.obj.Object, fields...)
	return s, found && err == nil
}

// NestedBool returns the bool at fields
func (e Envelope) NestedBool(fields ...string) (bool, bool) {
	if e.obj == nil {
		return false, false
	}
	b, found, err := unstructured.NestedBool(e.obj.Object, fields...)
	return b, found && err == nil
}

// NestedSlice returns a copy of the list at fields
func (e Envelope) NestedSlice(fields ...string) ([]interface{}, bool) {
	if e.obj == nil {
		return nil, false
	}
	s, found, err := unstructured.NestedSlice(e.obj.Object, fields...)
	return s, found && err == nil
}

// HasField reports whether a non-null value is present at fields
func (e Envelope) HasField(fields ...string) bool {
	if e.obj == nil {
		return false
	}
	v, found, err := unstructured.NestedFieldNoCopy(e.obj.Object, fields...)
	return found && err == nil && v != nil
}

// Object returns a deep copy of the whole object
func (e Envelope) Object() map[string]interface{} {
	if e.obj == nil {
		return nil
	}
	return runtime.DeepCopyJSON(e.obj.Object)
}

// Unstructured returns a deep copy as an apimachinery object
func (e Envelope) Unstructured() *unstructured.Unstructured {
	if e.obj == nil {
		return nil
	}
	return e.obj.DeepCopy()
}

// MarshalJSON encodes the object
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.obj == nil {
		return []byte("null"), nil
	}
	return utiljson.Marshal(e.obj.Object)
}
