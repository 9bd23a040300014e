package repository

import (
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// toVector narrows to float32, the storage type of pgvector.
func toVector(emb domain.Embedding) *pgvector.Vector {
	if len(emb) == 0 {
		return nil
	}
	floats := make([]float32, len(emb))
	for i, v := range emb {
		floats[i] = float32(v)
	}
	vec := pgvector.NewVector(floats)
	return &vec
}

func fromVector(vec *pgvector.Vector) domain.Embedding {
	if vec == nil || vec.Slice() == nil {
		return nil
	}
	emb := make(domain.Embedding, len(vec.Slice()))
	for i, v := range vec.Slice() {
		emb[i] = float64(v)
	}
	return emb
}
