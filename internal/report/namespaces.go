package report

import "github.com/kloia/kubevirt-api-client/internal/codec"

// NamespaceRow is a namespace with the metadata it was matched on
type NamespaceRow struct {
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
}

// FilterByLabel keeps namespaces carrying label key, and value when it is not nil
func FilterByLabel(namespaces []codec.Envelope, key string, value *string) []NamespaceRow {
	return filter(namespaces, key, value, codec.Envelope.Labels)
}

// FilterByAnnotation keeps namespaces carrying annotation key, and value when it is not nil
func FilterByAnnotation(namespaces []codec.Envelope, key string, value *string) []NamespaceRow {
	return filter(namespaces, key, value, codec.Envelope.Annotations)
}

func filter(namespaces []codec.Envelope, key string, value *string, get func(codec.Envelope) map[string]string) []NamespaceRow {
	rows := []NamespaceRow{}
	for _, ns := range namespaces {
		values := get(ns)
		v, ok := values[key]
		if !ok || (value != nil && v != *value) {
			continue
		}
		rows = append(rows, NamespaceRow{Name: ns.Name(), Values: values})
	}
	return rows
}
