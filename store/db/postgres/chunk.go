package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
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
		ON CONFLICT (collection, id)
		DO UPDATE SET
			file_id = EXCLUDED.file_id,
			chunk_index = EXCLUDED.chunk_index,
			source = EXCLUDED.source,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			created_ts = EXCLUDED.created_ts
	`
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, stmt,
			chunk.Collection,
			chunk.ID,
			chunk.FileID,
			chunk.ChunkIndex,
			chunk.Source,
			chunk.Content,
			pgvector.NewVector(chunk.Embedding),
			chunk.CreatedTs,
		); err != nil {
			return errors.Wrapf(err, "failed to upsert chunk %s", chunk.ID)
		}
	}
	return tx.Commit()
}

// SearchChunks orders by pgvector cosine distance; score is 1 - distance.
func (d *DB) SearchChunks(ctx context.Context, search *store.SearchChunks) ([]*store.ChunkWithScore, error) {
	limit := search.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT collection, id, file_id, chunk_index, source, content, embedding, created_ts,
			1 - (embedding <=> ` + placeholder(2) + `) AS score
		FROM vector_chunk
		WHERE collection = ` + placeholder(1) + `
		ORDER BY embedding <=> ` + placeholder(2) + `
		LIMIT ` + placeholder(3)
	rows, err := d.db.QueryContext(ctx, query, search.Collection, pgvector.NewVector(search.Embedding), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search chunks")
	}
	defer rows.Close()

	results := []*store.ChunkWithScore{}
	for rows.Next() {
		var chunk store.Chunk
		var vector pgvector.Vector
		var score float64
		if err := rows.Scan(
			&chunk.Collection,
			&chunk.ID,
			&chunk.FileID,
			&chunk.ChunkIndex,
			&chunk.Source,
			&chunk.Content,
			&vector,
			&chunk.CreatedTs,
			&score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		chunk.Embedding = vector.Slice()
		results = append(results, &store.ChunkWithScore{Chunk: &chunk, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
	return result.RowsAffected()
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
