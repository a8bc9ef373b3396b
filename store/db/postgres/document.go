package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/store"
)

func (d *DB) CreateDocument(ctx context.Context, create *store.Document) (*store.Document, error) {
	stmt := `
		INSERT INTO document (id, original_name, storage_path, mime_type, size, status, extracted_text, uploaded_ts, updated_ts)
		VALUES (` + placeholders(9) + `)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.OriginalName,
		create.StoragePath,
		create.MimeType,
		create.Size,
		create.Status,
		create.ExtractedText,
		create.UploadedTs,
		create.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}
	return create, nil
}

func (d *DB) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *find.Status)
	}

	query := `
		SELECT id, original_name, storage_path, mime_type, size, status, extracted_text, uploaded_ts, updated_ts
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY uploaded_ts DESC, id DESC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	list := []*store.Document{}
	for rows.Next() {
		var document store.Document
		if err := rows.Scan(
			&document.ID,
			&document.OriginalName,
			&document.StoragePath,
			&document.MimeType,
			&document.Size,
			&document.Status,
			&document.ExtractedText,
			&document.UploadedTs,
			&document.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		list = append(list, &document)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateDocument(ctx context.Context, update *store.UpdateDocument) (*store.Document, error) {
	set, args := []string{"updated_ts = " + placeholder(1)}, []any{update.UpdatedTs}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *update.Status)
	}
	if update.ExtractedText != nil {
		set, args = append(set, "extracted_text = "+placeholder(len(args)+1)), append(args, *update.ExtractedText)
	}
	args = append(args, update.ID)

	stmt := `UPDATE document SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update document")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, errors.Errorf("document not found: %s", update.ID)
	}

	list, err := d.ListDocuments(ctx, &store.FindDocument{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("document not found: %s", update.ID)
	}
	return list[0], nil
}

func (d *DB) DeleteDocument(ctx context.Context, delete *store.DeleteDocument) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM document WHERE id = "+placeholder(1), delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	return nil
}
