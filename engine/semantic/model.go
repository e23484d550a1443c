package semantic

// VectorRecord is a single embedded chunk to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // title, body, doc_id, source, topic, chunk_index
}
