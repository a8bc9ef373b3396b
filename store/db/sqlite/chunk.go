package sqlite

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/store"
)

func (d *DB) UpsertChunks(ctx context.Context, chunks []*store.Chunk) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	stmt := `
		INSERT INTO vector_chunk (collection, id, file_id, chunk_index, source, content, embedding, created_ts)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (collection, id) DO UPDATE SET
			file_id = excluded.file_id,
			chunk_index = excluded.chunk_index,
			source = excluded.source,
			content = excluded.content,
			embedding = excluded.embedding,
			created_ts = excluded.created_ts
	`
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, stmt,
			chunk.Collection,
			chunk.ID,
			chunk.FileID,
			chunk.ChunkIndex,
			chunk.Source,
			chunk.Content,
			encodeEmbedding(chunk.Embedding),
			chunk.CreatedTs,
		); err != nil {
			return errors.Wrapf(err, "failed to upsert chunk %s", chunk.ID)
		}
	}
	return tx.Commit()
}

// SearchChunks ranks every chunk of the collection in process.
func (d *DB) SearchChunks(ctx context.Context, search *store.SearchChunks) ([]*store.ChunkWithScore, error) {
	query := `
		SELECT collection, id, file_id, chunk_index, source, content, embedding, created_ts
		FROM vector_chunk
		WHERE collection = ` + placeholder(1)
	rows, err := d.db.QueryContext(ctx, query, search.Collection)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search chunks")
	}
	defer rows.Close()

	results := []*store.ChunkWithScore{}
	for rows.Next() {
		var chunk store.Chunk
		var embedding []byte
		if err := rows.Scan(
			&chunk.Collection,
			&chunk.ID,
			&chunk.FileID,
			&chunk.ChunkIndex,
			&chunk.Source,
			&chunk.Content,
			&embedding,
			&chunk.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		chunk.Embedding = decodeEmbedding(embedding)
		results = append(results, &store.ChunkWithScore{
			Chunk: &chunk,
			Score: store.CosineSimilarity(search.Embedding, chunk.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if search.Limit > 0 && len(results) > search.Limit {
		results = results[:search.Limit]
	}
	return results, nil
}

func (d *DB) DeleteChunks(ctx context.Context, delete *store.DeleteChunks) (int64, error) {
	where, args := []string{}, []any{}
	if delete.Collection != nil {
		where, args = append(where, "collection = "+placeholder(len(args)+1)), append(args, *delete.Collection)
	}
	if delete.FileID != nil {
		where, args = append(where, "file_id = "+placeholder(len(args)+1)), append(args, *delete.FileID)
	}
	if len(where) == 0 {
		return 0, errors.New("refusing to delete chunks without a filter")
	}

	result, err := d.db.ExecContext(ctx, "DELETE FROM vector_chunk WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete chunks")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (d *DB) ListCollections(ctx context.Context) ([]*store.Collection, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT collection, COUNT(*)
		FROM vector_chunk
		GROUP BY collection
		ORDER BY collection ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list collections")
	}
	defer rows.Close()

	list := []*store.Collection{}
	for rows.Next() {
		var collection store.Collection
		if err := rows.Scan(&collection.Name, &collection.ChunkCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan collection")
		}
		list = append(list, &collection)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// encodeEmbedding packs the vector as little-endian float32s.
func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding
}
